package factoryindex

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/eventstore/tests/helpers"
	"github.com/stretchr/testify/require"
)

func TestChildAddressLocationRoundTrip(t *testing.T) {
	loc := Topic(1)
	s := loc.String()
	parsed, err := ParseChildAddressLocation(s)
	require.NoError(t, err)
	require.Equal(t, loc, parsed)

	loc2 := DataOffset(64)
	s2 := loc2.String()
	parsed2, err := ParseChildAddressLocation(s2)
	require.NoError(t, err)
	require.Equal(t, loc2, parsed2)
}

func TestExtractChildAddressFromTopic(t *testing.T) {
	want := common.HexToAddress("0x00000000000000000000000000000000001234")
	topic1 := common.BytesToHash(want.Bytes())
	topics := []common.Hash{{}, topic1}

	got, err := ExtractChildAddress(Topic(1), topics, nil)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestExtractChildAddressFromDataOffset(t *testing.T) {
	want := common.HexToAddress("0x0000000000000000000000000000000000abcd")
	data := make([]byte, 64)
	copy(data[32+12:64], want.Bytes())

	got, err := ExtractChildAddress(DataOffset(32), nil, data)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRegisterAndRecordChildAddresses(t *testing.T) {
	db := helpers.NewTestDB(t, "factoryindex")
	s := New(nil)

	factory := &Factory{
		ChainID:              1,
		FactoryID:            "fac1",
		Address:              common.HexToAddress("0x1111111111111111111111111111111111111a"),
		EventSelector:        common.HexToHash("0xdead"),
		ChildAddressLocation: Topic(1),
	}
	require.NoError(t, s.RegisterFactory(db, factory))
	require.NoError(t, s.RegisterFactory(db, factory)) // idempotent

	got, found, err := s.GetFactory(db, 1, "fac1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, factory.Address, got.Address)
	require.Equal(t, factory.ChildAddressLocation, got.ChildAddressLocation)

	addrAt := func(i byte) common.Address {
		var a common.Address
		a[19] = i
		return a
	}

	for i := byte(1); i <= 3; i++ {
		require.NoError(t, s.RecordChildAddress(db, &ChildAddress{
			ChainID:     1,
			FactoryID:   "fac1",
			Address:     addrAt(i),
			BlockNumber: uint64(i),
			LogIndex:    0,
		}))
	}
	// idempotent re-insert
	require.NoError(t, s.RecordChildAddress(db, &ChildAddress{
		ChainID:     1,
		FactoryID:   "fac1",
		Address:     addrAt(1),
		BlockNumber: 1,
		LogIndex:    0,
	}))

	pages := s.GetFactoryChildAddresses(db, 1, "fac1", big.NewInt(3))
	var all []common.Address
	for {
		addrs, ok, err := pages.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		all = append(all, addrs...)
	}
	require.Len(t, all, 3)
}

func TestGetFactoryChildAddressesRespectsUpToBlockNumber(t *testing.T) {
	db := helpers.NewTestDB(t, "factoryindex_upto")
	s := New(nil)

	factory := &Factory{
		ChainID:              1,
		FactoryID:            "fac1",
		Address:              common.HexToAddress("0x1111111111111111111111111111111111111a"),
		EventSelector:        common.HexToHash("0xdead"),
		ChildAddressLocation: Topic(1),
	}
	require.NoError(t, s.RegisterFactory(db, factory))

	addrAt := func(i byte) common.Address {
		var a common.Address
		a[19] = i
		return a
	}
	for i := byte(1); i <= 5; i++ {
		require.NoError(t, s.RecordChildAddress(db, &ChildAddress{
			ChainID:     1,
			FactoryID:   "fac1",
			Address:     addrAt(i),
			BlockNumber: uint64(i),
			LogIndex:    0,
		}))
	}

	pages := s.GetFactoryChildAddresses(db, 1, "fac1", big.NewInt(3))
	var all []common.Address
	for {
		addrs, ok, err := pages.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		all = append(all, addrs...)
	}
	require.Len(t, all, 3)
	for _, a := range all {
		require.LessOrEqual(t, a[19], byte(3))
	}
}
