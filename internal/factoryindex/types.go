// Package factoryindex implements the factory child-address index: given
// a factory contract and the log topic/offset a child address is emitted
// at, it extracts and paginates the set of contracts that factory has
// deployed.
package factoryindex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// LocationKind selects how a child address is encoded within a factory's
// deployment-event log.
type LocationKind int

const (
	// LocationTopic means the child address is the lower 20 bytes of
	// topic N (N in [1,3]; topic0 is always the event selector).
	LocationTopic LocationKind = iota
	// LocationDataOffset means the child address is the lower 20 bytes
	// of the 32-byte word starting at the given byte offset into the
	// log's data payload.
	LocationDataOffset
)

// ChildAddressLocation tags where in a matching log the child address is
// found.
type ChildAddressLocation struct {
	Kind LocationKind
	// TopicIndex is used when Kind == LocationTopic, in [1,3].
	TopicIndex int
	// DataOffset is used when Kind == LocationDataOffset, a multiple of 32.
	DataOffset int
}

// Topic builds a topic-indexed location.
func Topic(index int) ChildAddressLocation {
	return ChildAddressLocation{Kind: LocationTopic, TopicIndex: index}
}

// DataOffset builds a data-offset location.
func DataOffset(offset int) ChildAddressLocation {
	return ChildAddressLocation{Kind: LocationDataOffset, DataOffset: offset}
}

// String renders the location in the compact form stored in the database:
// "topic:N" or "offset:K".
func (l ChildAddressLocation) String() string {
	switch l.Kind {
	case LocationTopic:
		return fmt.Sprintf("topic:%d", l.TopicIndex)
	case LocationDataOffset:
		return fmt.Sprintf("offset:%d", l.DataOffset)
	default:
		return "invalid"
	}
}

// ParseChildAddressLocation parses the String() form back into a
// ChildAddressLocation.
func ParseChildAddressLocation(s string) (ChildAddressLocation, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return ChildAddressLocation{}, fmt.Errorf("invalid child address location %q", s)
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return ChildAddressLocation{}, fmt.Errorf("invalid child address location %q: %w", s, err)
	}
	switch kind {
	case "topic":
		return Topic(n), nil
	case "offset":
		return DataOffset(n), nil
	default:
		return ChildAddressLocation{}, fmt.Errorf("invalid child address location %q", s)
	}
}

// Factory is a registered factory contract tracked under a chain.
type Factory struct {
	ChainID              uint64
	FactoryID            string
	Address              common.Address
	EventSelector        common.Hash
	ChildAddressLocation ChildAddressLocation
}

// ChildAddress is one discovered child contract, with the provenance of
// the log that revealed it.
type ChildAddress struct {
	ChainID     uint64
	FactoryID   string
	Address     common.Address
	BlockNumber uint64
	LogIndex    uint
}

// ExtractChildAddress reads the child address out of a matching log's
// topics/data per loc. Returns an error if the log doesn't carry enough
// data for the configured location.
func ExtractChildAddress(loc ChildAddressLocation, topics []common.Hash, data []byte) (common.Address, error) {
	switch loc.Kind {
	case LocationTopic:
		if loc.TopicIndex < 0 || loc.TopicIndex >= len(topics) {
			return common.Address{}, fmt.Errorf("factoryindex: topic index %d out of range (have %d topics)", loc.TopicIndex, len(topics))
		}
		return common.BytesToAddress(topics[loc.TopicIndex].Bytes()), nil
	case LocationDataOffset:
		end := loc.DataOffset + 32
		if loc.DataOffset < 0 || end > len(data) {
			return common.Address{}, fmt.Errorf("factoryindex: data offset %d out of range (have %d bytes)", loc.DataOffset, len(data))
		}
		return common.BytesToAddress(data[loc.DataOffset:end]), nil
	default:
		return common.Address{}, fmt.Errorf("factoryindex: invalid location kind %d", loc.Kind)
	}
}
