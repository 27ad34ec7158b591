// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kadirpekel/arena/pkg/config"
	"github.com/kadirpekel/arena/pkg/logger"
)

const (
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
)

// initLogger installs the default logger.
// Priority: CLI flags > env vars > config file > defaults.
// The returned cleanup closes the log file, if any.
func initLogger(cliLevel, cliFile, cliFormat string, fileCfg *config.LoggerConfig) (func(), error) {
	if fileCfg == nil {
		fileCfg = &config.LoggerConfig{}
	}

	level := firstSet(cliLevel, os.Getenv(LogLevelEnvVar), fileCfg.Level, "info")
	file := firstSet(cliFile, os.Getenv(LogFileEnvVar), fileCfg.File)
	format := firstSet(cliFormat, os.Getenv(LogFormatEnvVar), fileCfg.Format, logger.FormatSimple)

	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return func() {}, fmt.Errorf("invalid log level: %w", err)
	}

	var output io.Writer = os.Stderr
	cleanup := func() {}
	if file != "" {
		w, err := logger.OpenLogFile(file, logger.Rotation{
			MaxSizeMB:  fileCfg.MaxSizeMB,
			MaxBackups: fileCfg.MaxBackups,
			MaxAgeDays: fileCfg.MaxAgeDays,
			Compress:   fileCfg.Compress,
		})
		if err != nil {
			return func() {}, err
		}
		output = w
		cleanup = func() { _ = w.Close() }
	}

	logger.Init(lvl, output, format)
	return cleanup, nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
