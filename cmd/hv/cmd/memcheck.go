/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/blacktop/go-hvcore"
	"github.com/spf13/cobra"
)

// Step is the outcome of one memcheck operation.
type Step struct {
	Op      string          `json:"op"`
	GPA     string          `json:"gpa"`
	Size    uint64          `json:"size"`
	Perm    string          `json:"perm,omitempty"`
	Error   string          `json:"error,omitempty"`
	Regions []hvcore.Region `json:"regions"`
}

// MemcheckResult is the JSON report printed by memcheck.
type MemcheckResult struct {
	PageSize uint64 `json:"page_size"`
	Steps    []Step `json:"steps"`
	Passed   bool   `json:"passed"`
}

var memcheckGPA uint64

func init() {
	memcheckCmd.Flags().Uint64Var(&memcheckGPA, "gpa", 0, "Guest physical base address (must be page-aligned)")
	rootCmd.AddCommand(memcheckCmd)
}

var memcheckCmd = &cobra.Command{
	Use:   "memcheck",
	Short: "Run map/protect/unmap scenarios against the hypervisor and print the region table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		vm, err := newVM()
		if err != nil {
			return fmt.Errorf("failed to create VM: %w", err)
		}
		defer vm.Close()

		page := vm.PageSize()
		mem, err := hvcore.AllocHost(int(4 * page))
		if err != nil {
			return err
		}
		defer mem.Free()
		buf := mem.Bytes()

		res := MemcheckResult{PageSize: page, Passed: true}
		step := func(op string, gpa, size uint64, perm hvcore.MemPerm, err error, want error) {
			s := Step{Op: op, GPA: fmt.Sprintf("0x%x", gpa), Size: size, Regions: vm.Regions()}
			if op != "unmap" {
				s.Perm = perm.String()
			}
			if err != nil {
				s.Error = err.Error()
			}
			if (want == nil) != (err == nil) || (want != nil && !errors.Is(err, want)) {
				res.Passed = false
			}
			res.Steps = append(res.Steps, s)
		}

		base := memcheckGPA

		// map RW, drop to R, unmap, then re-map the same range X only
		rw := hvcore.MemRead | hvcore.MemWrite
		step("map", base, page, rw, vm.Map(buf[:page], base, rw), nil)
		step("protect", base, page, hvcore.MemRead, vm.Protect(base, page, hvcore.MemRead), nil)
		if p, err := vm.Permissions(base); err != nil || p.Has(hvcore.MemWrite) {
			res.Passed = false
		}
		step("unmap", base, page, 0, vm.Unmap(base, page), nil)
		step("map", base, page, hvcore.MemExec, vm.Map(buf[:page], base, hvcore.MemExec), nil)
		step("unmap", base, page, 0, vm.Unmap(base, page), nil)

		// overlapping maps: the second must fail and leave the first intact
		step("map", base, 2*page, rw, vm.Map(buf[:2*page], base, rw), nil)
		step("map", base+page, 2*page, rw, vm.Map(buf[2*page:], base+page, rw), hvcore.ErrInvalidRange)
		if r, ok := vm.Lookup(base + page); !ok || r.GPA != base || r.Size != 2*page {
			res.Passed = false
		}
		step("unmap", base, 2*page, 0, vm.Unmap(base, 2*page), nil)

		if err := printJSON(res); err != nil {
			return err
		}
		if !res.Passed {
			return errors.New("memcheck failed")
		}
		return nil
	},
}
