// Copyright (c) 2026, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/choria-io/fisk"
	"github.com/choria-io/formstate"
	"github.com/choria-io/formstate/answers"
	"github.com/choria-io/formstate/api"
	"github.com/choria-io/formstate/upload"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configFile string
	apiURL     string
	tokenFile  string
	orgID      string
	debug      bool
	version    string

	cfg *formstate.Config
	log *zap.SugaredLogger
)

func main() {
	app := fisk.New("formstate", "Fills, submits and reports on dynamic forms")
	app.Version(version)

	app.Help = `
Fill server defined forms interactively, submit the answers and report on them.

Forms are ordered sections of fields, select options and field visibility may
depend on earlier answers and matrix fields repeat a group of questions.
`
	app.Flag("config", "Configuration file to load").PlaceHolder("FILE").StringVar(&configFile)
	app.Flag("api", "Backend API URL").PlaceHolder("URL").StringVar(&apiURL)
	app.Flag("token-file", "JSON token store holding the access token").PlaceHolder("FILE").StringVar(&tokenFile)
	app.Flag("org", "Organization to query").PlaceHolder("ID").StringVar(&orgID)
	app.Flag("debug", "Enable debug logging").BoolVar(&debug)

	configureFillCommand(app)
	configureSubmitCommand(app)
	configureDashboardCommand(app)
	configureReportCommand(app)

	app.MustParseWithUsage(os.Args[1:])
}

func setup() error {
	var err error

	cfg, err = formstate.LoadConfig(configFile)
	if err != nil {
		return err
	}

	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if tokenFile != "" {
		cfg.TokenFile = tokenFile
	}
	if orgID != "" {
		cfg.OrganizationID = orgID
	}

	err = cfg.Validate()
	if err != nil {
		return err
	}

	log, err = newLogger(debug)

	return err
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.Sugar(), nil
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func apiClient() (*api.Client, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("an api url is required, set api_url or pass --api")
	}

	opts := []api.Option{api.WithLogger(log)}
	if cfg.TokenFile != "" {
		opts = append(opts, api.WithTokenSource(api.NewFileTokenStore(cfg.TokenFile)))
	}

	return api.NewClient(cfg.APIURL, opts...)
}

func uploadClient() (*upload.Client, error) {
	opts := []upload.Option{upload.WithLogger(log)}
	if cfg.TokenFile != "" {
		opts = append(opts, upload.WithTokenSource(api.NewFileTokenStore(cfg.TokenFile)))
	}

	return upload.NewClient(cfg.APIURL, opts...)
}

func readSections(path string) ([]answers.Section, error) {
	sb, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sections []answers.Section
	err = json.Unmarshal(sb, &sections)
	if err != nil {
		return nil, fmt.Errorf("invalid answers in %s: %w", path, err)
	}

	return sections, nil
}

func writeJSON(path string, v any) error {
	j, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if path == "" || path == "-" {
		_, err = fmt.Println(string(j))
		return err
	}

	return os.WriteFile(path, append(j, '\n'), 0600)
}
