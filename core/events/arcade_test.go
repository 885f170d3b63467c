package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestCurrencySoldEvent(t *testing.T) {
	user := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	evt := CurrencySold{
		GameID:          7,
		User:            user,
		CurrencyIn:      uint256.NewInt(300000),
		ReserveOut:      uint256.NewInt(18750),
		WeightedAverage: uint256.NewInt(80000000000000000),
		ReserveAmount:   big.NewInt(-250),
	}.Event()
	if evt == nil {
		t.Fatalf("expected event")
	}
	if evt.Type != TypeCurrencySold {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["gameId"] != "7" || evt.Attributes["user"] != user.Hex() {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["reserveOut"] != "18750" || evt.Attributes["reserveAmount"] != "-250" {
		t.Fatalf("unexpected amounts: %+v", evt.Attributes)
	}
}

func TestBoughtEventNilAmounts(t *testing.T) {
	evt := CurrencyBought{GameID: 1}.Event()
	if evt.Attributes["reserveIn"] != "0" || evt.Attributes["reserveAmount"] != "0" {
		t.Fatalf("nil amounts should render as zero: %+v", evt.Attributes)
	}
	if evt.Attributes["user"] != "" {
		t.Fatalf("zero address should render empty, got %q", evt.Attributes["user"])
	}
}

func TestFanoutAndRecorder(t *testing.T) {
	first := &Recorder{}
	second := &Recorder{}
	fan := Fanout{first, nil, second, NoopEmitter{}}
	fan.Emit(GameCreated{GameID: 1})
	fan.Emit(GameRateUpdated{GameID: 1})
	for _, rec := range []*Recorder{first, second} {
		got := rec.Types()
		if len(got) != 2 || got[0] != TypeGameCreated || got[1] != TypeGameRateUpdated {
			t.Fatalf("unexpected recorded types: %v", got)
		}
	}
}

func TestBufferHoldsUntilFlush(t *testing.T) {
	sink := &Recorder{}
	buf := NewBuffer(sink)
	buf.Emit(GameCreated{GameID: 1})
	buf.Emit(GameRateUpdated{GameID: 1})
	if len(sink.Events) != 0 {
		t.Fatalf("events leaked before flush: %v", sink.Types())
	}
	if n := buf.Flush(); n != 2 {
		t.Fatalf("flushed %d events, want 2", n)
	}
	got := sink.Types()
	if len(got) != 2 || got[0] != TypeGameCreated || got[1] != TypeGameRateUpdated {
		t.Fatalf("unexpected flushed types: %v", got)
	}

	buf.Emit(CurrencyMinted{GameID: 1})
	if n := buf.Drop(); n != 1 {
		t.Fatalf("dropped %d events, want 1", n)
	}
	if n := buf.Flush(); n != 0 || len(sink.Events) != 2 {
		t.Fatalf("dropped event was forwarded: %v", sink.Types())
	}
}
