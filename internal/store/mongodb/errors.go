package mongodb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfeidau/orgd/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
)

// Unique index names created by ensureIndexes
const (
	indexOrganizationName = "uniq_organization_name"
	indexCollectionName   = "uniq_collection_name"
	indexAdminEmail       = "uniq_email"
)

// codeNamespaceExists is returned by create on an existing collection.
const codeNamespaceExists = 48

// mapMongoError maps driver errors to store sentinel errors.
// Returns the original error if it doesn't match known patterns.
func mapMongoError(err error) error {
	if err == nil {
		return nil
	}

	if mongo.IsDuplicateKeyError(err) {
		// The server names the violated index in the message
		msg := err.Error()
		switch {
		case strings.Contains(msg, indexOrganizationName):
			return store.ErrOrganizationAlreadyExists
		case strings.Contains(msg, indexCollectionName):
			return store.ErrCollectionNameTaken
		case strings.Contains(msg, indexAdminEmail):
			return store.ErrEmailAlreadyExists
		}
		return fmt.Errorf("duplicate key: %w", err)
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == codeNamespaceExists {
		return store.ErrCollectionExists
	}

	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	return err
}
