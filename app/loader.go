package app

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fairnb/domain/core"
	"fairnb/domain/dataset"
	"fairnb/domain/network"
	"fairnb/ports"
)

// Loader reads the network description and the binarized table of a dataset.
type Loader struct {
	tables   ports.DatasetReader
	networks ports.NetworkReader
	logger   *logrus.Logger
}

// NewLoader creates a loader over the given readers.
func NewLoader(tables ports.DatasetReader, networks ports.NetworkReader, logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Loader{tables: tables, networks: networks, logger: logger}
}

// Load reads both files and checks that every network feature is a column
// of the table.
func (l *Loader) Load(networkPath, tablePath string) (*network.Network, *dataset.Table, error) {
	start := time.Now()

	net, err := l.networks.ReadNetwork(networkPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load network: %w", err)
	}
	table, err := l.tables.ReadTable(tablePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	for _, name := range net.Columns() {
		if _, ok := table.Column(name); !ok {
			return nil, nil, core.NewMissingColumnError(name)
		}
	}

	l.logger.WithFields(logrus.Fields{
		"network":   networkPath,
		"table":     tablePath,
		"rows":      table.Len(),
		"leaves":    net.NumLeaves(),
		"sensitive": net.SensitiveNames(),
		"elapsed":   time.Since(start),
	}).Info("[Loader] dataset loaded")
	return net, table, nil
}
