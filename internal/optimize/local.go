package optimize

import (
	"context"
	"errors"
)

// Local runs the service in-process on behalf of one user, answering the
// way the HTTP endpoint does: pipeline failures come back in Response.Error.
type Local struct {
	svc    *Service
	userID int64
}

// ForUser binds the service to userID. A zero userID skips persistence.
func (s *Service) ForUser(userID int64) Local {
	return Local{svc: s, userID: userID}
}

// Optimize implements planner.Optimizer.
func (l Local) Optimize(ctx context.Context, addresses []string) (Response, error) {
	plan, err := l.svc.Optimize(ctx, l.userID, addresses)
	if err != nil {
		var oe *Error
		if errors.As(err, &oe) {
			return Response{Error: oe.Message}, nil
		}
		return Response{}, err
	}
	return plan.Response(), nil
}
