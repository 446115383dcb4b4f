package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"configtrack/internal/revert"
	"configtrack/internal/track"
)

// Reverter applies the inverse of a commit. Satisfied by
// *revert.Engine.
type Reverter interface {
	Revert(ctx context.Context, hash string) (*revert.Outcome, error)
}

type Server struct {
	session  *track.Session
	reverter Reverter
	mcp      *sdk.Server
}

func NewServer(session *track.Session, reverter Reverter, version string) *Server {
	s := &Server{
		session:  session,
		reverter: reverter,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "configtrack",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
