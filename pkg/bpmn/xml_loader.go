package bpmn

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
)

// LoadFromFile loads a given BPMN file by filename into the engine
// and returns ProcessDefinition details for the deployed workflow
func (engine *Engine) LoadFromFile(ctx context.Context, filename string) (*runtime.ProcessDefinition, error) {
	xmlData, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load from file: %w", err)
	}
	return engine.load(ctx, xmlData, filepath.Base(filename))
}

// LoadFromBytes loads a given BPMN file by xmlData byte array into the engine
// and returns ProcessDefinition details for the deployed workflow
func (engine *Engine) LoadFromBytes(ctx context.Context, xmlData []byte, resourceName string) (*runtime.ProcessDefinition, error) {
	definition, err := engine.load(ctx, xmlData, resourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to load from bytes: %w", err)
	}
	return definition, nil
}

// load deploys xmlData as a new version of its process. Reloading the source
// of the latest version returns that version unchanged.
func (engine *Engine) load(ctx context.Context, xmlData []byte, resourceName string) (*runtime.ProcessDefinition, error) {
	md5sum := md5.Sum(xmlData)
	var definitions bpmn20.TDefinitions
	if err := xml.Unmarshal(xmlData, &definitions); err != nil {
		return nil, &BpmnEngineUnmarshallingError{Msg: "failed to unmarshal xml data", Err: err}
	}
	processId := definitions.Process.Id
	if processId == "" {
		return nil, newValidationErrorf("process in %q has no id", resourceName)
	}

	unlock, err := engine.locks.Lock(ctx, "deploy:"+processId)
	if err != nil {
		return nil, err
	}
	defer unlock()

	definition := runtime.ProcessDefinition{
		ProcessModelId: processId,
		Version:        1,
		Hash:           hex.EncodeToString(md5sum[:]),
		BpmnData:       string(xmlData),
		ResourceName:   resourceName,
		Definitions:    definitions,
		DeployedAt:     time.Now().UTC(),
	}
	latest, err := engine.persistence.FindLatestProcessDefinitionById(ctx, processId)
	switch {
	case err == nil:
		if latest.Hash == definition.Hash {
			return &latest, nil
		}
		definition.Version = latest.Version + 1
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to load processes by id %s: %w", processId, err)
	}
	if err := engine.persistence.SaveProcessDefinition(ctx, definition); err != nil {
		return nil, fmt.Errorf("failed to save process definition: %w", err)
	}
	if engine.cronjobsEnabled {
		if err := engine.cronjobs.AddOrUpdate(&definition); err != nil {
			engine.logger.Error("failed to schedule cronjobs", "processModelId", processId, "err", err)
		}
	}
	engine.exportNewProcessEvent(definition, xmlData)
	engine.logger.Info("process deployed", "processModelId", processId, "version", definition.Version, "hash", definition.Hash)
	return &definition, nil
}
