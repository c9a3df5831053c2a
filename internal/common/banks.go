/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"fmt"
	"os"
	"path/filepath"

	"party-request-go/internal/models"

	"gopkg.in/yaml.v2"
)

type BanksConfig struct {
	Banks []models.Bank `yaml:"banks"`
}

// LoadBankConfig reads the fallback bank list served when the backend
// cannot list banks
func LoadBankConfig(banksFile string) ([]models.Bank, error) {
	var banksPath string
	if filepath.IsAbs(banksFile) {
		banksPath = banksFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		banksPath = filepath.Join(wd, banksFile)
	}

	data, err := os.ReadFile(banksPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", banksFile, err)
	}

	var config BanksConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", banksFile, err)
	}

	for i, bank := range config.Banks {
		if bank.Name == "" {
			return nil, fmt.Errorf("bank at index %d missing name", i)
		}
		if bank.Code == "" {
			return nil, fmt.Errorf("bank at index %d missing code", i)
		}
	}

	return config.Banks, nil
}
