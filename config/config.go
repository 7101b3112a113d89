// Copyright (c) 2024 The Board of Trustees of the Leland Stanford Junior University
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// well-known portal hosts, selected with the "prod" and "dev" modes
const (
	ProdMode = "prod"
	ProdHost = "www.encodeproject.org"
	DevMode  = "dev"
	DevHost  = "test.encodedcc.org"
)

// a type with parameters describing which portal instance to talk to
type portalConfig struct {
	// portal instance selector: "prod", "dev", or an explicit hostname
	// such as demo.encodedcc.org
	Mode string `json:"mode" yaml:"mode"`
	// per-request timeout in seconds, applied uniformly to every call
	Timeout int `json:"timeout" yaml:"timeout"`
}

// a type with parameters that supply submission defaults
type submissionConfig struct {
	// default value for the lab property of submitted records
	Lab string `json:"lab" yaml:"lab"`
	// default value for the award property of submitted records
	Award string `json:"award" yaml:"award"`
	// namespace prefix added to aliases that lack one; defaults to the lab
	AliasPrefix string `json:"alias_prefix" yaml:"alias_prefix"`
}

// a type with logging parameters
type loggingConfig struct {
	// directory holding the error and debug log files (created on demand)
	Directory string `json:"directory" yaml:"directory"`
	// whether log files are written at all (messages still go to stdout)
	Files bool `json:"files" yaml:"files"`
}

// a type with submission journal parameters
type journalConfig struct {
	// path to the journal's SQLite database file (empty disables the journal)
	Path string `json:"path" yaml:"path"`
}

// global config variables
var Portal portalConfig
var Submission submissionConfig
var Logging loggingConfig
var Journal journalConfig

// This struct performs the unmarshalling from the YAML config file and then
// copies its fields to the globals above.
type configFile struct {
	Portal     portalConfig     `yaml:"portal"`
	Submission submissionConfig `yaml:"submission"`
	Logging    loggingConfig    `yaml:"logging"`
	Journal    journalConfig    `yaml:"journal"`
}

// This helper reads configuration data, returning an error indicating success
// or failure. All environment variables of the form ${ENV_VAR} are expanded.
func readConfig(bytes []byte) error {
	// Before we do anything else, expand any provided environment variables.
	bytes = []byte(os.ExpandEnv(string(bytes)))

	var conf configFile
	conf.Portal.Mode = ProdMode
	conf.Portal.Timeout = 60
	conf.Logging.Directory = "encsubmit_logs"
	err := yaml.Unmarshal(bytes, &conf)
	if err != nil {
		log.Printf("Couldn't parse configuration data: %s\n", err)
		return err
	}

	// an unspecified alias prefix falls back to the lab identifier
	if conf.Submission.AliasPrefix == "" {
		conf.Submission.AliasPrefix = conf.Submission.Lab
	}

	// copy the config data into place
	Portal = conf.Portal
	Submission = conf.Submission
	Logging = conf.Logging
	Journal = conf.Journal

	return err
}

// This helper validates the given portal parameters, returning an error
// indicating success or failure.
func validatePortalParameters(params portalConfig) error {
	if params.Mode == "" {
		return fmt.Errorf("No portal mode or host was provided!")
	}
	if params.Timeout <= 0 {
		return fmt.Errorf("Invalid timeout: %d (must be positive)", params.Timeout)
	}
	return nil
}

// This helper validates the configuration globals, returning an error that
// indicates success or failure.
func validateConfig() error {
	err := validatePortalParameters(Portal)
	if err != nil {
		return err
	}
	if Logging.Files && Logging.Directory == "" {
		return fmt.Errorf("Log files were requested but no log directory was given!")
	}
	return nil
}

// PortalURL returns the base URL of the portal instance selected by the
// configured mode. A mode that isn't "prod" or "dev" is taken to be an
// explicit hostname.
func PortalURL() string {
	switch Portal.Mode {
	case ProdMode:
		return "https://" + ProdHost
	case DevMode:
		return "https://" + DevHost
	default:
		return "https://" + Portal.Mode
	}
}

// Initializes the submission client configuration using the given YAML byte
// data.
func Init(yamlData []byte) error {

	// Read the configuration from our YAML file.
	err := readConfig(yamlData)
	if err != nil {
		return err
	}

	// Validate the configuration.
	err = validateConfig()
	return err
}
