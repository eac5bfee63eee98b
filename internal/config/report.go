package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReportConfig carries the branding printed on student report cards.
type ReportConfig struct {
	SchoolName   string `yaml:"school_name" json:"school_name"`
	SchoolSlogan string `yaml:"school_slogan" json:"school_slogan"`
	Period       string `yaml:"report_period" json:"report_period"`
	DateText     string `yaml:"report_date_text" json:"report_date_text"`
	SignerTitle  string `yaml:"report_signer_title" json:"report_signer_title"`
	// PassingAverage colours an average as passing in the report view.
	PassingAverage int `yaml:"passing_average" json:"passing_average"`
	// DefaultFeedback is printed when no result carries teacher feedback.
	DefaultFeedback string `yaml:"default_feedback" json:"default_feedback"`
}

// DefaultReportConfig returns the report template used when no file is given.
func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		SchoolName:      "SMADA GENIUS ACADEMY",
		SchoolSlogan:    "Sistem Evaluasi Digital Terintegrasi",
		Period:          "Semester Ganjil 2024",
		DateText:        "Semarang, 1 Januari 2026",
		SignerTitle:     "Wali Kelas",
		PassingAverage:  75,
		DefaultFeedback: "Siswa menunjukkan partisipasi yang aktif. Terus tingkatkan kedisiplinan belajar.",
	}
}

// LoadReportConfig reads a YAML report template from path and overlays it on
// the defaults. Fields left empty in the file keep their default value.
// An empty path returns the defaults.
func LoadReportConfig(path string) (ReportConfig, error) {
	cfg := DefaultReportConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read report config: %w", err)
	}

	var file ReportConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return cfg, fmt.Errorf("parse report config: %w", err)
	}

	return cfg.merge(file), nil
}

func (c ReportConfig) merge(o ReportConfig) ReportConfig {
	if o.SchoolName != "" {
		c.SchoolName = o.SchoolName
	}
	if o.SchoolSlogan != "" {
		c.SchoolSlogan = o.SchoolSlogan
	}
	if o.Period != "" {
		c.Period = o.Period
	}
	if o.DateText != "" {
		c.DateText = o.DateText
	}
	if o.SignerTitle != "" {
		c.SignerTitle = o.SignerTitle
	}
	if o.DefaultFeedback != "" {
		c.DefaultFeedback = o.DefaultFeedback
	}
	if o.PassingAverage > 0 {
		c.PassingAverage = o.PassingAverage
	}
	return c
}
