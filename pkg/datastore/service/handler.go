package service

import (
	"errors"
	"fmt"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/protocol"
)

// Handler adapts the Service to the IPC frame contract.
type Handler struct {
	svc *Service
}

// NewHandler wraps a Service for the IPC server.
func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Handle dispatches one decoded request. Request-lane types return response
// fields in schema order; oneway types return nothing.
func (h *Handler) Handle(req protocol.Request) ([]string, error) {
	switch req.Type {
	case protocol.TypeValidateAndLoad:
		out, err := h.svc.ValidateAndLoad(req.Args[0], req.Args[1])
		if errors.Is(err, ErrNoCredits) {
			// The refusal still reports who ran out and by how much.
			return []string{out.AccountID, protocol.FormatNumber(out.Credits)}, err
		}
		if err != nil {
			return nil, err
		}
		return []string{out.AccountID, out.SessionData, protocol.FormatNumber(out.Credits)}, nil

	case protocol.TypeGetCredits:
		credits, err := h.svc.GetCredits(req.Args[0])
		if err != nil {
			return nil, err
		}
		return []string{protocol.FormatNumber(credits)}, nil

	case protocol.TypeUpdateUsage:
		h.svc.UpdateUsage(req.Args[0], req.Args[1], req.Args[2],
			protocol.Number(req.Args[3]), protocol.Number(req.Args[4]))
		return nil, nil

	case protocol.TypeSaveSession:
		h.svc.SaveSession(req.Args[0], req.Args[1], req.Args[2])
		return nil, nil

	case protocol.TypeAppendConversation:
		h.svc.AppendConversation(req.Args[0], req.Args[1], req.Args[2])
		return nil, nil
	}
	return nil, fmt.Errorf("unhandled message type %s", req.Type)
}
