// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package ptr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_deref(t *testing.T) {
	assert.Equal(t, 10, Deref(nil, 10))
	assert.Equal(t, 3, Deref(To(3), 10))
	assert.Equal(t, "", Deref(To(""), "fallback"))
}
