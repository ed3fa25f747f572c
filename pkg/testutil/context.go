package testutil

import (
	"net/http"

	id "lexbounty/pkg/domain"
	"lexbounty/pkg/requestcontext"
)

// WithActor marks req as authenticated for account, the way RequireAuth does.
func WithActor(req *http.Request, account id.AccountID) *http.Request {
	return req.WithContext(requestcontext.WithActorID(req.Context(), account))
}
