// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package matcher

import (
	"errors"
	"testing"

	"github.com/decred/cfmatch/compute"
	"github.com/decred/cfmatch/kernels"
)

// fakePipeline is a compiled pipeline with a fixed execution width.
type fakePipeline struct {
	name  string
	width int
}

func (p *fakePipeline) Name() string              { return p.name }
func (p *fakePipeline) ThreadExecutionWidth() int { return p.width }

// TestKernelSetLookup ensures missing kernels are reported as ErrKernelsEmpty
// and present kernels are returned by name.
func TestKernelSetLookup(t *testing.T) {
	hash := &fakePipeline{name: kernels.HashName, width: 8}
	compare := &fakePipeline{name: kernels.CompareName, width: 8}

	tests := []struct {
		name        string
		ks          kernelSet
		wantFirst   compute.Pipeline
		wantCompare compute.Pipeline
	}{{
		name: "empty",
		ks:   kernelSet{},
	}, {
		name: "nil",
		ks:   nil,
	}, {
		name: "nil pipelines",
		ks:   kernelSet{kernels.HashName: nil, kernels.CompareName: nil},
	}, {
		name:      "hash only",
		ks:        kernelSet{kernels.HashName: hash},
		wantFirst: hash,
	}, {
		name:        "compare only",
		ks:          kernelSet{kernels.CompareName: compare},
		wantCompare: compare,
	}, {
		name: "both",
		ks: kernelSet{
			kernels.HashName:    hash,
			kernels.CompareName: compare,
		},
		wantFirst:   hash,
		wantCompare: compare,
	}}

	check := func(name, which string, got, want compute.Pipeline, err error) {
		t.Helper()
		if want == nil {
			if !errors.Is(err, ErrKernelsEmpty) {
				t.Errorf("%s: %s: unexpected error -- got %v, want %v", name,
					which, err, ErrKernelsEmpty)
			}
			return
		}
		if err != nil {
			t.Errorf("%s: %s: unexpected error: %v", name, which, err)
			return
		}
		if got != want {
			t.Errorf("%s: %s: got: %v want: %v", name, which, got, want)
		}
	}
	for _, test := range tests {
		p, err := test.ks.first()
		check(test.name, "first", p, test.wantFirst, err)
		p, err = test.ks.compare()
		check(test.name, "compare", p, test.wantCompare, err)
	}
}
