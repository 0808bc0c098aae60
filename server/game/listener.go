package game

//go:generate go tool mockgen -destination=./mocks/listener_mock.go -package=mocks . Listener

// Listener receives the outputs of a running Sim. Calls are made after the
// state is committed and never overlap: per-tick calls come from whichever
// goroutine runs Tick, and the final OnState/OnEnd pair comes from the
// goroutine that ends the session (End, Tick or Run), which may be the caller
// of End itself. Implementations must not block and must not call End.
type Listener interface {
	OnState(s *State)
	OnClaim(c ClaimedArea)
	OnCut(c Cut)
	OnEnd(s Summary)
}

// NopListener ignores everything.
type NopListener struct{}

func (NopListener) OnState(*State)      {}
func (NopListener) OnClaim(ClaimedArea) {}
func (NopListener) OnCut(Cut)           {}
func (NopListener) OnEnd(Summary)       {}
