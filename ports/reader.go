package ports

import (
	"fairnb/domain/dataset"
	"fairnb/domain/network"
)

// DatasetReader loads a binarized categorical table.
type DatasetReader interface {
	ReadTable(path string) (*dataset.Table, error)
}

// NetworkReader loads a network-description file.
type NetworkReader interface {
	ReadNetwork(path string) (*network.Network, error)
}
