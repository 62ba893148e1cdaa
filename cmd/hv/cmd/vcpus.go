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
	"fmt"
	"sync"

	"github.com/blacktop/go-hvcore"
	"github.com/spf13/cobra"
)

// VCPUResult describes one vCPU creation attempt.
type VCPUResult struct {
	Worker int    `json:"worker"`
	ID     uint64 `json:"id"`
	Thread uint64 `json:"thread"`
	Error  string `json:"error,omitempty"`
}

var vcpuCount int

func init() {
	vcpusCmd.Flags().IntVarP(&vcpuCount, "count", "n", 4, "Number of threads to create a vCPU on")
	rootCmd.AddCommand(vcpusCmd)
}

var vcpusCmd = &cobra.Command{
	Use:   "vcpus",
	Short: "Create one vCPU per thread and show thread affinity enforcement",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if vcpuCount < 1 {
			return fmt.Errorf("--count must be at least 1")
		}

		vm, err := newVM()
		if err != nil {
			return fmt.Errorf("failed to create VM: %w", err)
		}
		defer vm.Close()

		results := make([]VCPUResult, vcpuCount)
		var (
			created sync.WaitGroup
			done    sync.WaitGroup
			release = make(chan struct{})
		)
		created.Add(vcpuCount)
		done.Add(vcpuCount)
		for i := range vcpuCount {
			go func() {
				defer done.Done()
				res := &results[i]
				res.Worker = i

				c, err := vm.NewVCPU()
				if err != nil {
					res.Error = err.Error()
					created.Done()
					return
				}
				res.ID, res.Thread = c.ID(), c.ThreadID()
				created.Done()

				// hold the vCPU until every worker has one so threads are distinct
				<-release
				if err := c.Close(); err != nil {
					res.Error = err.Error()
				}
			}()
		}
		created.Wait()
		close(release)
		done.Wait()

		// a second vCPU on the same thread is refused
		affinity := vm.WithVCPU(func(*hvcore.VCPU) error {
			_, err := vm.NewVCPU()
			return err
		})

		if err := printJSON(struct {
			VCPUs    []VCPUResult `json:"vcpus"`
			Affinity string       `json:"second_vcpu_same_thread"`
		}{results, fmt.Sprint(affinity)}); err != nil {
			return err
		}
		for _, r := range results {
			if r.Error != "" {
				return fmt.Errorf("worker %d: %s", r.Worker, r.Error)
			}
		}
		return nil
	},
}
