// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_parse(t *testing.T) {
	p, ok := Parse(" prod ")
	assert.True(t, ok)
	assert.Equal(t, PROD, p)

	_, ok = Parse("staging")
	assert.False(t, ok)
}

func Test_init_profile_keeps_default_for_unknown_value(t *testing.T) {
	t.Cleanup(func() { Current = DEV })
	t.Setenv("PROFILE", "staging")

	InitProfile()

	assert.Equal(t, DEV, Current)

	t.Setenv("PROFILE", "test")
	InitProfile()
	assert.Equal(t, TEST, Current)
}
