package broadcast

import (
	"context"
	"time"

	"github.com/jhughescu/dev-cms/pkg/interfaces"
	"github.com/jhughescu/dev-cms/pkg/types"
)

// BuildPopulated resolves the file references in currentState and every
// history snapshot to full records, producing the sessionState fan-out shape.
func BuildPopulated(ctx context.Context, files interfaces.FileStore, session *types.Session) (*types.PopulatedSession, error) {
	current, err := files.Populate(ctx, session.CurrentState)
	if err != nil {
		return nil, err
	}

	history := make([]types.PopulatedHistory, 0, len(session.StateHistory))
	for _, snapshot := range session.StateHistory {
		resolved, err := files.Populate(ctx, snapshot.State)
		if err != nil {
			return nil, err
		}
		history = append(history, types.PopulatedHistory{
			State:     resolved,
			Timestamp: snapshot.Timestamp,
		})
	}

	return &types.PopulatedSession{
		Session:      *session,
		CurrentState: current,
		StateHistory: history,
	}, nil
}

// BuildLite reduces a populated session to the fields a student client needs
// to render, bounding frame size on large histories.
func BuildLite(populated *types.PopulatedSession) types.LiteState {
	files := make([]types.LiteFile, 0, len(populated.CurrentState))
	for _, f := range populated.CurrentState {
		files = append(files, types.LiteFile{
			ID:           f.ID,
			URL:          f.URL,
			Mimetype:     f.Mimetype,
			OriginalName: f.OriginalName,
			UploadedBy:   f.UploadedBy,
		})
	}
	return types.LiteState{
		SessionID:        populated.SessionID,
		CurrentState:     files,
		StateHistorySize: len(populated.StateHistory),
		Timestamp:        time.Now().UnixMilli(),
	}
}
