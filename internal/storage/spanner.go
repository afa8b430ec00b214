package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
)

// Spanner is a Backend over a single PlaidStorage table keyed on
// (Namespace, Key). Reads prefer a bounded-staleness snapshot; writes go
// through read-write transactions so Insert can report the prior value's
// length atomically with the update.
type Spanner struct {
	client *spanner.Client
	logger *slog.Logger
}

// NewSpanner opens a client against the given project/instance/database.
func NewSpanner(ctx context.Context, project, instance, database string) (*Spanner, error) {
	dbPath := fmt.Sprintf("projects/%s/instances/%s/databases/%s", project, instance, database)
	client, err := spanner.NewClient(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: spanner client: %w", err)
	}
	return &Spanner{client: client, logger: slog.Default().With("component", "storage.spanner")}, nil
}

func (s *Spanner) Insert(ctx context.Context, ns, key string, value []byte) (int, error) {
	var existingLen int
	_, err := s.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		row, err := txn.ReadRow(ctx, "PlaidStorage", spanner.Key{ns, key}, []string{"Value"})
		if err != nil {
			if spanner.ErrCode(err) != codes.NotFound {
				return err
			}
			existingLen = 0
		} else {
			var existing []byte
			if err := row.Columns(&existing); err != nil {
				return err
			}
			existingLen = len(existing)
		}

		mutation := spanner.InsertOrUpdate("PlaidStorage",
			[]string{"Namespace", "Key", "Value", "UpdatedAt"},
			[]interface{}{ns, key, value, spanner.CommitTimestamp},
		)
		return txn.BufferWrite([]*spanner.Mutation{mutation})
	})
	if err != nil {
		return 0, fmt.Errorf("storage: spanner insert: %w", err)
	}
	return existingLen, nil
}

func (s *Spanner) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	roTx := s.client.ReadOnlyTransaction().WithTimestampBound(spanner.MaxStaleness(5 * time.Second))
	defer roTx.Close()

	row, err := roTx.ReadRow(ctx, "PlaidStorage", spanner.Key{ns, key}, []string{"Value"})
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: spanner get: %w", err)
	}
	var value []byte
	if err := row.Columns(&value); err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Spanner) Delete(ctx context.Context, ns, key string) (int, bool, error) {
	var deletedLen int
	var found bool
	_, err := s.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		row, err := txn.ReadRow(ctx, "PlaidStorage", spanner.Key{ns, key}, []string{"Value"})
		if err != nil {
			if spanner.ErrCode(err) == codes.NotFound {
				return nil
			}
			return err
		}
		var value []byte
		if err := row.Columns(&value); err != nil {
			return err
		}
		deletedLen = len(value)
		found = true
		return txn.BufferWrite([]*spanner.Mutation{spanner.Delete("PlaidStorage", spanner.Key{ns, key})})
	})
	if err != nil {
		return 0, false, fmt.Errorf("storage: spanner delete: %w", err)
	}
	return deletedLen, found, nil
}

func (s *Spanner) ListKeys(ctx context.Context, ns string) ([]string, error) {
	stmt := spanner.Statement{
		SQL:    `SELECT Key FROM PlaidStorage WHERE Namespace = @ns`,
		Params: map[string]interface{}{"ns": ns},
	}
	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var keys []string
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("storage: spanner list keys: %w", err)
		}
		var key string
		if err := row.Columns(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Spanner) GetNamespaceByteSize(ctx context.Context, ns string) (uint64, error) {
	stmt := spanner.Statement{
		SQL:    `SELECT Key, Value FROM PlaidStorage WHERE Namespace = @ns`,
		Params: map[string]interface{}{"ns": ns},
	}
	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var total uint64
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("storage: spanner namespace size: %w", err)
		}
		var key string
		var value []byte
		if err := row.Columns(&key, &value); err != nil {
			return 0, err
		}
		total += uint64(len(key)) + uint64(len(value))
	}
	return total, nil
}

func (s *Spanner) IsPersistent() bool { return true }

// Close releases the underlying Spanner client.
func (s *Spanner) Close() error {
	s.client.Close()
	return nil
}
