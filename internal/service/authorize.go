package service

import (
	"fmt"

	apperr "lessonscope/internal/errors"
	"lessonscope/internal/model"
	"lessonscope/internal/repository"
)

// authorize allows the owner and admins.
func authorize(actor *model.User, ownerID string) error {
	if actor == nil {
		return apperr.ErrUnauthorized
	}
	if actor.ID == ownerID || actor.IsAdmin() {
		return nil
	}
	return fmt.Errorf("%w: not the owner", apperr.ErrForbidden)
}

// listScope returns the user filter for a list call. Only admins may widen
// the scope to every user; for anyone else all is ignored.
func listScope(actor *model.User, limit, offset int, all bool) repository.ListFilter {
	filter := repository.ListFilter{UserID: actor.ID, Limit: limit, Offset: offset}
	if all && actor.IsAdmin() {
		filter.UserID = ""
	}
	return filter.Normalize()
}
