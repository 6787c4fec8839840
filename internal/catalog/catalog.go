// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package catalog holds the companies, reports and field mappings the two
// transfer jobs operate on. The built-in values can be overridden by a YAML file.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Company is a Great Plains company exported to Poliops.
type Company struct {
	Key        string   `yaml:"key"`
	DBName     string   `yaml:"dbname"`
	DateFrom   string   `yaml:"date_from"`
	MDAColumns []string `yaml:"mda_columns"`
}

// Report is one view exported for every company.
type Report struct {
	TableName     string `yaml:"table_name"`
	Suffix        string `yaml:"suffix"`
	HasMDAColumns bool   `yaml:"has_mda_columns"`
}

// CheckCompany names the check request file Poliops drops for a company
// (cr-{Abbreviation}.csv) and the directory it lands in locally.
type CheckCompany struct {
	Abbreviation  string `yaml:"abbreviation"`
	DirectoryName string `yaml:"directory_name"`
}

// Catalog is the full set of static job inputs.
type Catalog struct {
	Companies      []Company         `yaml:"companies"`
	Reports        []Report          `yaml:"reports"`
	CheckCompanies []CheckCompany    `yaml:"check_companies"`
	FieldMappings  map[string]string `yaml:"field_mappings"`
}

var aflcioMDAColumns = []string{
	"Date", "Check #", "Commit ID", "Request ID",
	"LM2 Code", "LM2 Desc", "LM2 Amt",
	"Project Code", "Project Desc", "Project Amt",
	"Affiliate Code", "Affiliate Desc", "Affiliate Amt",
	"State Code", "State Desc", "State Amt",
	"Employee Code", "Employee Desc", "Employee Amt",
	"Period Code", "Period Desc", "Period Amt",
	"Other1 Code", "Other1 Amt", "Other1 Desc",
	"Other2 Code", "Other2 Amt", "Other2 Desc",
	"DEX_ROW_TS", "ORPSTDDT", "ACCT_ROW_ID", "GL_ROW_ID",
	"Jrn Entry", "SEQNUMBR", "ORTRXSRC", "Generation",
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		Companies: []Company{
			{Key: "aflcio", DBName: "AFLCI", DateFrom: "2017-01-01", MDAColumns: append([]string(nil), aflcioMDAColumns...)},
			{Key: "cope", DBName: "PAC", DateFrom: "2014-01-01"},
			{Key: "wpr", DBName: "WPR", DateFrom: "2014-01-01"},
		},
		Reports: []Report{
			{TableName: "Poliops_MDA_View", Suffix: "", HasMDAColumns: true},
			{TableName: "S2_GL20_Poliops_exp", Suffix: "_narrow", HasMDAColumns: false},
		},
		CheckCompanies: []CheckCompany{
			{Abbreviation: "afl", DirectoryName: "AFLCIO"},
			{Abbreviation: "cope", DirectoryName: "COPE"},
			{Abbreviation: "wpr", DirectoryName: "WPR"},
		},
		FieldMappings: map[string]string{
			"FCC":          "LM2",
			"Project Code": "PROJECTS",
			"State Code":   "STATE",
			"Staffer ID":   "EMPLOYEES",
			"CommitID":     "COMMITID",
			"RequestID":    "REQUESTID",
			"PP Code":      "PROGRAM",
		},
	}
}

// Load returns the default catalog with any sections present in the YAML file
// at path replacing the built-in ones. An empty path returns the defaults.
func Load(path string) (*Catalog, error) {
	cat := Default()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if len(override.Companies) > 0 {
		cat.Companies = override.Companies
	}
	if len(override.Reports) > 0 {
		cat.Reports = override.Reports
	}
	if len(override.CheckCompanies) > 0 {
		cat.CheckCompanies = override.CheckCompanies
	}
	if len(override.FieldMappings) > 0 {
		cat.FieldMappings = override.FieldMappings
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// Validate checks that every entry has the fields the jobs need.
func (c *Catalog) Validate() error {
	for i, co := range c.Companies {
		if co.Key == "" || co.DBName == "" || co.DateFrom == "" {
			return fmt.Errorf("company %d: key, dbname and date_from are required", i)
		}
	}
	for i, r := range c.Reports {
		if r.TableName == "" {
			return fmt.Errorf("report %d: table_name is required", i)
		}
	}
	for i, cc := range c.CheckCompanies {
		if cc.Abbreviation == "" || cc.DirectoryName == "" {
			return fmt.Errorf("check company %d: abbreviation and directory_name are required", i)
		}
	}

	// Two source columns renamed to the same target would collide in the output header.
	seen := make(map[string]string, len(c.FieldMappings))
	keys := make([]string, 0, len(c.FieldMappings))
	for k := range c.FieldMappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := c.FieldMappings[k]
		if prev, ok := seen[v]; ok {
			return fmt.Errorf("field mappings %q and %q both map to %q", prev, k, v)
		}
		seen[v] = k
	}
	return nil
}
