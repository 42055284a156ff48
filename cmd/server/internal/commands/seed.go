package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/orgd/internal/logger"
	"github.com/wolfeidau/orgd/internal/models"
	"gopkg.in/yaml.v3"
)

// SeedCmd loads documents from a YAML file into an organization's collection,
// talking to the store directly.
type SeedCmd struct {
	Organization string `arg:"" help:"Organization whose collection receives the documents"`
	File         string `arg:"" help:"YAML file holding one document per mapping, or sequences of them" type:"existingfile"`

	Store StoreFlags `embed:""`
}

func (c *SeedCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Dev)
	ctx := log.WithContext(context.Background())

	if err := c.Store.Validate(); err != nil {
		return err
	}

	f, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	docs, err := readSeedDocuments(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.File, err)
	}

	st, err := c.Store.openStore(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	org, err := st.FindOrganizationByName(ctx, c.Organization)
	if err != nil {
		return fmt.Errorf("failed to find organization %q: %w", c.Organization, err)
	}

	for i, data := range docs {
		if err := st.InsertDocument(ctx, org.CollectionName, &models.Document{Data: data}); err != nil {
			return fmt.Errorf("failed to insert document %d: %w", i+1, err)
		}
	}

	log.Info().
		Str("organization_name", org.Name).
		Str("collection", org.CollectionName).
		Int("documents", len(docs)).
		Msg("Seeded collection")

	return nil
}

// readSeedDocuments decodes every YAML document in r. A mapping becomes one
// JSON object; a sequence contributes each of its mappings.
func readSeedDocuments(r io.Reader) ([]json.RawMessage, error) {
	dec := yaml.NewDecoder(r)

	var docs []json.RawMessage
	for {
		var node any
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		items, ok := node.([]any)
		if !ok {
			items = []any{node}
		}

		for _, item := range items {
			if item == nil {
				continue
			}
			obj, ok := jsonValue(item).(map[string]any)
			if !ok {
				return nil, fmt.Errorf("document %d is not a mapping", len(docs)+1)
			}
			data, err := json.Marshal(obj)
			if err != nil {
				return nil, fmt.Errorf("document %d: %w", len(docs)+1, err)
			}
			docs = append(docs, data)
		}
	}

	return docs, nil
}

// jsonValue rewrites YAML maps with non-string keys so they marshal as JSON.
func jsonValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = jsonValue(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonValue(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = jsonValue(val)
		}
		return t
	default:
		return v
	}
}
