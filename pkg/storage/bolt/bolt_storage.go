// Package bolt implements storage.Storage on top of an embedded bbolt
// database. Records are stored JSON encoded, one bucket per record type.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
	bolt "go.etcd.io/bbolt"
)

var (
	processDefinitionsBucket = []byte("process_definitions")
	flowNodeInstancesBucket  = []byte("flow_node_instances")
	correlationsBucket       = []byte("correlations")
	externalTasksBucket      = []byte("external_tasks")
	cronjobHistoryBucket     = []byte("cronjob_history")

	allBuckets = [][]byte{
		processDefinitionsBucket,
		flowNodeInstancesBucket,
		correlationsBucket,
		externalTasksBucket,
		cronjobHistoryBucket,
	}
)

// Storage persists engine records into a single bbolt file.
// Payloads read back are decoded by encoding/json, so numbers become float64.
type Storage struct {
	db *bolt.DB
}

var _ storage.Storage = &Storage{}

// Open opens or creates the database file and ensures all buckets exist.
func Open(path string, timeout time.Duration) (*Storage, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) put(bucket []byte, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record %s: %w", bucket, key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func get[T any](s *Storage, bucket []byte, key string) (T, error) {
	var res T
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &res)
	})
	return res, err
}

// scan decodes every record under prefix and keeps those accepted by match.
func scan[T any](s *Storage, bucket []byte, prefix string, match func(T) bool) ([]T, error) {
	res := make([]T, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("failed to unmarshal %s record %s: %w", bucket, k, err)
			}
			if match == nil || match(item) {
				res = append(res, item)
			}
		}
		return nil
	})
	return res, err
}

func definitionKey(processModelId string, version int32) string {
	return fmt.Sprintf("%s/%010d", processModelId, version)
}

func (s *Storage) FindLatestProcessDefinitionById(ctx context.Context, processModelId string) (runtime.ProcessDefinition, error) {
	versions, err := s.FindProcessDefinitionsById(ctx, processModelId)
	if err != nil {
		return runtime.ProcessDefinition{}, err
	}
	if len(versions) == 0 {
		return runtime.ProcessDefinition{}, storage.ErrNotFound
	}
	return versions[len(versions)-1], nil
}

func (s *Storage) FindProcessDefinitionsById(ctx context.Context, processModelId string) ([]runtime.ProcessDefinition, error) {
	// keys are ordered by the zero padded version
	return scan[runtime.ProcessDefinition](s, processDefinitionsBucket, processModelId+"/", nil)
}

func (s *Storage) FindAllLatestProcessDefinitions(ctx context.Context) ([]runtime.ProcessDefinition, error) {
	all, err := scan[runtime.ProcessDefinition](s, processDefinitionsBucket, "", nil)
	if err != nil {
		return nil, err
	}
	res := make([]runtime.ProcessDefinition, 0)
	for i, def := range all {
		if i+1 < len(all) && all[i+1].ProcessModelId == def.ProcessModelId {
			continue
		}
		res = append(res, def)
	}
	return res, nil
}

func (s *Storage) SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error {
	return s.put(processDefinitionsBucket, definitionKey(definition.ProcessModelId, definition.Version), definition)
}

func (s *Storage) FindFlowNodeInstanceById(ctx context.Context, flowNodeInstanceId string) (runtime.FlowNodeInstance, error) {
	return get[runtime.FlowNodeInstance](s, flowNodeInstancesBucket, flowNodeInstanceId)
}

func (s *Storage) findFlowNodeInstances(match func(runtime.FlowNodeInstance) bool) ([]runtime.FlowNodeInstance, error) {
	res, err := scan(s, flowNodeInstancesBucket, "", match)
	if err != nil {
		return nil, err
	}
	storage.SortFlowNodeInstances(res)
	return res, nil
}

func (s *Storage) FindFlowNodeInstancesByProcessInstanceId(ctx context.Context, processInstanceId string) ([]runtime.FlowNodeInstance, error) {
	return s.findFlowNodeInstances(func(i runtime.FlowNodeInstance) bool {
		return i.ProcessInstanceId == processInstanceId
	})
}

func (s *Storage) FindFlowNodeInstancesByProcessModelId(ctx context.Context, processModelId string) ([]runtime.FlowNodeInstance, error) {
	return s.findFlowNodeInstances(func(i runtime.FlowNodeInstance) bool {
		return i.ProcessModelId == processModelId
	})
}

func (s *Storage) FindFlowNodeInstancesByState(ctx context.Context, state runtime.FlowNodeInstanceState) ([]runtime.FlowNodeInstance, error) {
	return s.findFlowNodeInstances(func(i runtime.FlowNodeInstance) bool {
		return i.State == state
	})
}

func (s *Storage) SaveFlowNodeInstance(ctx context.Context, instance runtime.FlowNodeInstance) error {
	return s.put(flowNodeInstancesBucket, instance.Id, instance)
}

func (s *Storage) FindCorrelationByProcessInstanceId(ctx context.Context, processInstanceId string) (runtime.Correlation, error) {
	return get[runtime.Correlation](s, correlationsBucket, processInstanceId)
}

func (s *Storage) findCorrelations(match func(runtime.Correlation) bool) ([]runtime.Correlation, error) {
	res, err := scan(s, correlationsBucket, "", match)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(res, func(a, b runtime.Correlation) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return res, nil
}

func (s *Storage) FindCorrelationsByCorrelationId(ctx context.Context, correlationId string) ([]runtime.Correlation, error) {
	return s.findCorrelations(func(c runtime.Correlation) bool {
		return c.CorrelationId == correlationId
	})
}

func (s *Storage) FindCorrelationsByState(ctx context.Context, state runtime.CorrelationState) ([]runtime.Correlation, error) {
	return s.findCorrelations(func(c runtime.Correlation) bool {
		return c.State == state
	})
}

func (s *Storage) FindCorrelationsByParentProcessInstanceId(ctx context.Context, parentProcessInstanceId string) ([]runtime.Correlation, error) {
	return s.findCorrelations(func(c runtime.Correlation) bool {
		return c.ParentProcessInstanceId == parentProcessInstanceId
	})
}

func (s *Storage) SaveCorrelation(ctx context.Context, correlation runtime.Correlation) error {
	return s.put(correlationsBucket, correlation.ProcessInstanceId, correlation)
}

func (s *Storage) FindExternalTaskById(ctx context.Context, externalTaskId string) (runtime.ExternalTask, error) {
	return get[runtime.ExternalTask](s, externalTasksBucket, externalTaskId)
}

func (s *Storage) findExternalTasks(match func(runtime.ExternalTask) bool) ([]runtime.ExternalTask, error) {
	res, err := scan(s, externalTasksBucket, "", match)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(res, func(a, b runtime.ExternalTask) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return res, nil
}

func (s *Storage) FindExternalTasksByFlowNodeInstanceIds(ctx context.Context, flowNodeInstanceIds ...string) ([]runtime.ExternalTask, error) {
	return s.findExternalTasks(func(task runtime.ExternalTask) bool {
		return slices.Contains(flowNodeInstanceIds, task.FlowNodeInstanceId)
	})
}

func (s *Storage) FindExternalTasksByTopic(ctx context.Context, topic string, state runtime.ExternalTaskState) ([]runtime.ExternalTask, error) {
	return s.findExternalTasks(func(task runtime.ExternalTask) bool {
		return task.Topic == topic && task.State == state
	})
}

func (s *Storage) SaveExternalTask(ctx context.Context, task runtime.ExternalTask) error {
	return s.put(externalTasksBucket, task.Id, task)
}

func (s *Storage) FindCronjobHistory(ctx context.Context, processModelId string) ([]runtime.CronjobHistoryEntry, error) {
	return scan[runtime.CronjobHistoryEntry](s, cronjobHistoryBucket, processModelId+"/", nil)
}

func (s *Storage) SaveCronjobHistoryEntry(ctx context.Context, entry runtime.CronjobHistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cronjob history entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(cronjobHistoryBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s/%020d/%010d", entry.ProcessModelId, entry.ExecutedAt.UnixNano(), seq)
		return b.Put([]byte(key), data)
	})
}
