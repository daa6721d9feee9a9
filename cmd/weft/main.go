// Package main provides the Weft transfer engine CLI.
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/weft-ml/weft/backend/sim"
	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/tensor"
	"github.com/weft-ml/weft/transfer"
)

const version = "v0.1.0-dev"

var (
	benchTransfers = flag.Int("transfers", 32, "number of transfers the bench command issues")
	benchElems     = flag.Int("elems", 65536, "elements per tensor in the bench command")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) > 0 {
		switch args[0] {
		case "version":
			fmt.Printf("Weft %s\n", version)
			return
		case "demo":
			if err := runDemo(); err != nil {
				klog.Exitf("demo failed: %v", err)
			}
			return
		case "bench":
			if err := runBench(*benchTransfers, *benchElems); err != nil {
				klog.Exitf("bench failed: %v", err)
			}
			return
		}
	}

	fmt.Println("Weft - Cross-Device Tensor Transfer Engine")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  demo       Run a transfer between two simulated devices")
	fmt.Println("  bench      Sweep concurrent transfers between two simulated devices")
	os.Exit(0)
}

// definedInput allocates a float32 tensor of elems elements on dev, fills
// it with a ramp pattern through the host-to-device stream, and installs a
// definition event behind the write.
func definedInput(dev *sim.Device, elems int) (*tensor.Tensor, []byte, error) {
	input := tensor.New(tensor.Float32, tensor.Shape{elems})
	phys, err := tensor.DefaultRepresentation(input.Shape(), input.DType(), false)
	if err != nil {
		return nil, nil, err
	}
	if err := input.AllocateShapedBuffer(dev, phys); err != nil {
		return nil, nil, err
	}

	data := make([]byte, elems*4)
	for i := 0; i < elems; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(i)))
	}
	leaf := input.ShapedBuffer().Leaves()[0]
	h2d := dev.HostToDeviceStream()
	if err := h2d.WriteBytes(data, leaf.Memory); err != nil {
		return nil, nil, err
	}
	ev, err := dev.NewEvent()
	if err != nil {
		return nil, nil, err
	}
	h2d.RecordEvent(ev)
	input.ResetDefinitionEvent(ev, h2d)
	return input, data, nil
}

// runDemo copies a float32[1024] tensor between two simulated devices and
// verifies the destination bytes.
func runDemo() error {
	cluster, err := sim.NewCluster(sim.ClusterOptions{
		Devices: 2,
		Config:  transfer.DefaultConfig(),
	})
	if err != nil {
		return err
	}
	defer cluster.Close()

	devices := cluster.Devices()
	srcDev, dstDev := devices[0], devices[1]

	input, data, err := definedInput(srcDev, 1024)
	if err != nil {
		return err
	}

	output := tensor.New(tensor.Float32, tensor.Shape{1024})
	status := make(chan error, 1)
	transfer.Copy(srcDev, dstDev, sim.DefaultContext(), sim.DefaultContext(),
		transfer.AllocAttrs{}, transfer.AllocAttrs{}, input, output, 0,
		func(err error) { status <- err })
	if err := <-status; err != nil {
		return err
	}

	outLeaf := output.ShapedBuffer().Leaves()[0]
	got := outLeaf.Memory.(*sim.Memory).Bytes()
	if !bytes.Equal(got, data) {
		return fmt.Errorf("destination contents differ from source")
	}
	fmt.Printf("transferred %d bytes from %s to %s\n", len(data), srcDev.Name(), dstDev.Name())
	return nil
}

// runBench fans n concurrent float32[elems] transfers out between two
// simulated devices and reports aggregate throughput.
func runBench(n, elems int) error {
	if n <= 0 || elems <= 0 {
		return fmt.Errorf("bench needs positive -transfers and -elems, got %d and %d", n, elems)
	}
	perTensor := elems * 4
	cluster, err := sim.NewCluster(sim.ClusterOptions{
		Devices:              2,
		MemoryBytesPerDevice: 2 * n * perTensor,
		Substreams:           n,
		Config:               transfer.DefaultConfig(),
	})
	if err != nil {
		return err
	}
	defer cluster.Close()

	devices := cluster.Devices()
	srcDev, dstDev := devices[0], devices[1]

	inputs := make([]*tensor.Tensor, n)
	outputs := make([]*tensor.Tensor, n)
	for i := range inputs {
		input, _, err := definedInput(srcDev, elems)
		if err != nil {
			return err
		}
		inputs[i] = input
		outputs[i] = tensor.New(tensor.Float32, tensor.Shape{elems})
	}

	var failures atomic.Int64
	start := time.Now()
	parallel.For(n, func(i int) {
		status := make(chan error, 1)
		transfer.Copy(srcDev, dstDev, sim.DefaultContext(), sim.DefaultContext(),
			transfer.AllocAttrs{}, transfer.AllocAttrs{}, inputs[i], outputs[i], 0,
			func(err error) { status <- err })
		if err := <-status; err != nil {
			klog.Errorf("transfer %d failed: %v", i, err)
			failures.Add(1)
		}
	}, parallel.DefaultConfig())
	elapsed := time.Since(start)

	if f := failures.Load(); f > 0 {
		return fmt.Errorf("%d of %d transfers failed", f, n)
	}
	total := n * perTensor
	fmt.Printf("moved %d transfers x %d bytes in %v (%.1f MB/s)\n",
		n, perTensor, elapsed, float64(total)/elapsed.Seconds()/1e6)
	return nil
}
