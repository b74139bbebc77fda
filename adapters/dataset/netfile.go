package dataset

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"fairnb/domain/core"
	"fairnb/domain/network"
	"fairnb/ports"
)

// NetworkFileReader parses network-description files: a header line, then
// one "<name> <flag>" line per feature. The first feature is the target and
// its flag is the positive outcome value; on the other features flag 1
// marks a sensitive attribute. Lines with fewer than two fields are skipped.
type NetworkFileReader struct{}

var _ ports.NetworkReader = NetworkFileReader{}

// ReadNetwork parses the file at path.
func (NetworkFileReader) ReadNetwork(path string) (*network.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open network file: %w", err)
	}
	defer f.Close()

	net, err := ParseNetwork(bufio.NewScanner(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return net, nil
}

// ParseNetwork parses a network description from a scanner.
func ParseNetwork(sc *bufio.Scanner) (*network.Network, error) {
	var (
		target      string
		targetValue int
		features    []network.Feature
		seenTarget  bool
	)
	line := 0
	for sc.Scan() {
		line++
		if line == 1 {
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		name, flag := NormalizeColumn(fields[0]), fields[1]
		v, err := strconv.Atoi(flag)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: flag %q is not an integer", core.ErrMalformedInput, line, flag)
		}
		if !seenTarget {
			target, targetValue, seenTarget = name, v, true
			continue
		}
		features = append(features, network.Feature{Name: name, Sensitive: v == 1})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read network file: %w", err)
	}
	if !seenTarget {
		return nil, fmt.Errorf("%w: network file lists no features", core.ErrMalformedInput)
	}

	net, err := network.New(target, targetValue, features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedInput, err)
	}
	return net, nil
}
