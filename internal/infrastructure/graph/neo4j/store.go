package neo4j

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/akozlov/graphrag/internal/core/domain"
)

// Store keeps the knowledge graph in neo4j. Entities are merged by
// name, relations by (source, type, target); every write appends the
// originating document id so provenance survives re-ingestion.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(ctx context.Context, uri, user, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Store{driver: driver, database: database}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

const matchExactQuery = `
MATCH (e:Entity)
WHERE toLower(e.name) = toLower($name)
RETURN e.id AS id, e.name AS name, e.type AS type, e.source_ids AS source_ids
LIMIT $limit`

const matchSubstringQuery = `
MATCH (e:Entity)
WHERE toLower(e.name) CONTAINS toLower($name)
RETURN e.id AS id, e.name AS name, e.type AS type, e.source_ids AS source_ids
ORDER BY e.name
LIMIT $limit`

func (s *Store) MatchEntities(ctx context.Context, name string) ([]domain.Entity, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		entities, err := collectEntities(ctx, tx, matchExactQuery, map[string]any{"name": name, "limit": 10})
		if err != nil {
			return nil, err
		}
		if len(entities) > 0 {
			return entities, nil
		}
		// Substring fallback so "Smith" still finds "John Smith".
		return collectEntities(ctx, tx, matchSubstringQuery, map[string]any{"name": name, "limit": 10})
	})
	if err != nil {
		return nil, fmt.Errorf("match entities %q: %w", name, err)
	}
	return out.([]domain.Entity), nil
}

const neighborsQuery = `
MATCH (a:Entity {id: $id})-[r:RELATES]-(b:Entity)
RETURN b.id AS id, b.name AS name, b.type AS type, b.source_ids AS source_ids,
       r.type AS rel_type, r.source_ids AS rel_source_ids,
       startNode(r) = a AS outgoing, a.name AS anchor
ORDER BY b.name, r.type`

func (s *Store) Neighbors(ctx context.Context, entityID string) ([]domain.Entity, []domain.Relation, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	type neighborhood struct {
		entities  []domain.Entity
		relations []domain.Relation
	}

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, neighborsQuery, map[string]any{"id": entityID})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}

		var hood neighborhood
		for _, record := range records {
			entity := entityFromRecord(record)
			hood.entities = append(hood.entities, entity)

			relation := domain.Relation{
				Type:      recordString(record, "rel_type"),
				SourceIDs: recordStrings(record, "rel_source_ids"),
			}
			anchor := recordString(record, "anchor")
			if recordBool(record, "outgoing") {
				relation.SourceName = anchor
				relation.TargetName = entity.Name
			} else {
				relation.SourceName = entity.Name
				relation.TargetName = anchor
			}
			hood.relations = append(hood.relations, relation)
		}
		return hood, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("neighbors of %s: %w", entityID, err)
	}

	hood := out.(neighborhood)
	return hood.entities, hood.relations, nil
}

const mergeEntityQuery = `
MERGE (e:Entity {name: $name})
ON CREATE SET e.id = $id, e.type = $type, e.source_ids = [$doc_id]
ON MATCH SET e.type = coalesce(e.type, $type),
             e.source_ids = [x IN coalesce(e.source_ids, []) WHERE x <> $doc_id] + $doc_id`

const mergeRelationQuery = `
MATCH (a:Entity {name: $source}), (b:Entity {name: $target})
MERGE (a)-[r:RELATES {type: $type}]->(b)
ON CREATE SET r.source_ids = [$doc_id]
ON MATCH SET r.source_ids = [x IN coalesce(r.source_ids, []) WHERE x <> $doc_id] + $doc_id`

// Write stores the extracted graph of one document in a single
// transaction: either all of its entities and relations land, or none.
func (s *Store) Write(ctx context.Context, documentID string, entities []domain.Entity, relations []domain.Relation) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, entity := range entities {
			id := entity.ID
			if id == "" {
				id = uuid.NewString()
			}
			_, err := tx.Run(ctx, mergeEntityQuery, map[string]any{
				"name":   entity.Name,
				"id":     id,
				"type":   entity.Type,
				"doc_id": documentID,
			})
			if err != nil {
				return nil, fmt.Errorf("merge entity %q: %w", entity.Name, err)
			}
		}
		for _, relation := range relations {
			_, err := tx.Run(ctx, mergeRelationQuery, map[string]any{
				"source": relation.SourceName,
				"target": relation.TargetName,
				"type":   relation.Type,
				"doc_id": documentID,
			})
			if err != nil {
				return nil, fmt.Errorf("merge relation %s-[%s]->%s: %w",
					relation.SourceName, relation.Type, relation.TargetName, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("write graph for document %s: %w", documentID, err)
	}
	return nil
}

func collectEntities(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]domain.Entity, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	entities := make([]domain.Entity, 0, len(records))
	for _, record := range records {
		entities = append(entities, entityFromRecord(record))
	}
	return entities, nil
}

func entityFromRecord(record *neo4j.Record) domain.Entity {
	return domain.Entity{
		ID:        recordString(record, "id"),
		Name:      recordString(record, "name"),
		Type:      recordString(record, "type"),
		SourceIDs: recordStrings(record, "source_ids"),
	}
}

func recordString(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func recordBool(record *neo4j.Record, key string) bool {
	v, ok := record.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func recordStrings(record *neo4j.Record, key string) []string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
