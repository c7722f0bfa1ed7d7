package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// RSEFile — содержимое YAML-файла DD_RSE_CONFIG.
//
//	rses:
//	  - name: FNAL_DCACHE_TAPE
//	    is_enabled: true
//	    is_available: true
//	    is_tape: true
//	    type: dcache
//	    pin_url: https://fndca.fnal.gov:3880/api/v1/bulk-requests
//	    poll_url: https://fndca.fnal.gov:3880/api/v1/namespace
//	proximity:
//	  - {cpu_site: FNAL, rse: FNAL_DCACHE_TAPE, proximity: 0}
type RSEFile struct {
	RSEs      []rseEntry        `yaml:"rses"`
	Proximity []model.Proximity `yaml:"proximity"`
}

// rseEntry — RSE в YAML. is_enabled и is_available по умолчанию true.
type rseEntry struct {
	model.RSE `yaml:",inline"`

	Enabled   *bool `yaml:"is_enabled"`
	Available *bool `yaml:"is_available"`
}

// LoadRSEFile читает и валидирует YAML-описание RSE.
func LoadRSEFile(path string) ([]model.RSE, []model.Proximity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("чтение %s: %w", path, err)
	}
	return ParseRSEFile(data)
}

// ParseRSEFile разбирает YAML-описание RSE.
func ParseRSEFile(data []byte) ([]model.RSE, []model.Proximity, error) {
	var f RSEFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, nil, fmt.Errorf("разбор YAML RSE: %w", err)
	}

	seen := make(map[string]bool, len(f.RSEs))
	rses := make([]model.RSE, 0, len(f.RSEs))
	for i, e := range f.RSEs {
		rse := e.RSE
		if rse.Name == "" {
			return nil, nil, fmt.Errorf("rses[%d]: не задано имя", i)
		}
		if seen[rse.Name] {
			return nil, nil, fmt.Errorf("rses[%d]: повторяющееся имя %q", i, rse.Name)
		}
		seen[rse.Name] = true

		rse.IsEnabled = e.Enabled == nil || *e.Enabled
		rse.IsAvailable = e.Available == nil || *e.Available
		if rse.MaxPollBurst < 0 {
			return nil, nil, fmt.Errorf("rses[%d]: max_poll_burst не может быть отрицательным", i)
		}
		rses = append(rses, rse)
	}

	for i, p := range f.Proximity {
		if p.CPUSite == "" || p.RSE == "" {
			return nil, nil, fmt.Errorf("proximity[%d]: не заданы cpu_site или rse", i)
		}
		if !seen[p.RSE] {
			return nil, nil, fmt.Errorf("proximity[%d]: неизвестный RSE %q", i, p.RSE)
		}
	}

	return rses, f.Proximity, nil
}
