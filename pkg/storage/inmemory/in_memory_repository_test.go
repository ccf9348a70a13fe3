// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package inmemory_test

import (
	"testing"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
	"github.com/pbinitiative/zenflow/pkg/storage/inmemory"
	"github.com/pbinitiative/zenflow/pkg/storage/storagetest"
	"github.com/stretchr/testify/assert"
)

func Test_in_memory_storage(t *testing.T) {
	var store storage.Storage = inmemory.NewStorage()

	tester := storagetest.StorageTester{}

	tests := tester.GetTests()
	tester.PrepareTestData(store, t)
	for name, testFunc := range tests {
		t.Run(name, testFunc(store, t))
	}
}

func Test_in_memory_storage_returns_detached_records(t *testing.T) {
	store := inmemory.NewStorage()
	instance := runtime.FlowNodeInstance{Id: "1", ProcessInstanceId: "pi", PreviousFlowNodeInstanceIds: []string{"a"}}
	assert.NoError(t, store.SaveFlowNodeInstance(t.Context(), instance))

	stored, err := store.FindFlowNodeInstanceById(t.Context(), "1")
	assert.NoError(t, err)
	stored.PreviousFlowNodeInstanceIds[0] = "changed"

	again, _ := store.FindFlowNodeInstanceById(t.Context(), "1")
	assert.Equal(t, []string{"a"}, again.PreviousFlowNodeInstanceIds)
}
