package routing

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestChoosePrefersFirstCandidateWhenAllHealthy(t *testing.T) {
	d := NewHealthDecider(zerolog.Nop(), "alphapay", "betabank")
	got, err := d.Choose([]string{"alphapay", "betabank"})
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if got != "alphapay" {
		t.Errorf("Choose = %s, want preference order to break the tie", got)
	}
}

func TestChooseAvoidsFailingConnector(t *testing.T) {
	d := NewHealthDecider(zerolog.Nop(), "alphapay", "betabank")
	for i := 0; i < 30; i++ {
		d.RegisterFailure("alphapay")
		d.RegisterSuccess("betabank", 50*time.Millisecond)
	}
	got, err := d.Choose([]string{"alphapay", "betabank"})
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if got != "betabank" {
		t.Errorf("Choose = %s, want betabank", got)
	}
}

func TestAllCircuitsOpenReturnsError(t *testing.T) {
	d := NewHealthDecider(zerolog.Nop(), "alphapay")
	for i := 0; i < 30; i++ {
		d.RegisterFailure("alphapay")
	}
	_, err := d.Choose([]string{"alphapay"})
	if !errors.Is(err, ErrNoConnectorAvailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestSuccessInHalfOpenClosesCircuit(t *testing.T) {
	d := NewHealthDecider(zerolog.Nop(), "alphapay")
	for i := 0; i < 30; i++ {
		d.RegisterFailure("alphapay")
	}
	s := d.status("alphapay")
	s.mutex.Lock()
	s.state = stateHalfOpen
	s.mutex.Unlock()

	d.RegisterSuccess("alphapay", 20*time.Millisecond)

	got, err := d.Choose([]string{"alphapay"})
	if err != nil {
		t.Fatalf("Choose after recovery: %v", err)
	}
	if got != "alphapay" {
		t.Errorf("Choose = %s", got)
	}
}

func TestHealthScorePenalizesFailures(t *testing.T) {
	d := NewHealthDecider(zerolog.Nop(), "good", "bad")
	for i := 0; i < 10; i++ {
		d.RegisterSuccess("good", 10*time.Millisecond)
	}
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			d.RegisterFailure("bad")
		} else {
			d.RegisterSuccess("bad", 10*time.Millisecond)
		}
	}
	goodScore := d.healthScore(d.status("good"))
	badScore := d.healthScore(d.status("bad"))
	if goodScore <= badScore {
		t.Errorf("good score %f <= bad score %f", goodScore, badScore)
	}
}
