/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/v2xmesh/substrate/buffer"
	"github.com/v2xmesh/substrate/comm"
	"github.com/v2xmesh/substrate/config"
	"github.com/v2xmesh/substrate/link"
	"github.com/v2xmesh/substrate/mac"
	"github.com/v2xmesh/substrate/nav"
	"github.com/v2xmesh/substrate/nic"
	"github.com/v2xmesh/substrate/ptpsync"
	"github.com/v2xmesh/substrate/rsu"
	"github.com/v2xmesh/substrate/smartdata"
	"github.com/v2xmesh/substrate/stats"
	"github.com/v2xmesh/substrate/v2xproto"
	"github.com/v2xmesh/substrate/wire"
)

var (
	runConfigFlag string
	runIfaceFlag  string
	runSysIDFlag  uint32
	runMonFlag    int
)

func init() {
	RootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runConfigFlag, "config", "", "path to a yaml config file")
	runCmd.Flags().StringVar(&runIfaceFlag, "iface", "", "interface to run on (overrides config)")
	runCmd.Flags().Uint32Var(&runSysIDFlag, "sysid", 0, "system id (overrides config; 0 means use the process id)")
	runCmd.Flags().IntVar(&runMonFlag, "monitoringport", 0, "port to run the monitoring server on (overrides config)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a vehicle process: both transports, protocol demux, clock sync and configured pub/sub components",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		if err := runVehicle(); err != nil {
			log.Fatal(err)
		}
	},
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if runConfigFlag != "" {
		loaded, err := config.Load(runConfigFlag)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if runIfaceFlag != "" {
		cfg.InterfaceName = runIfaceFlag
	}
	if runSysIDFlag != 0 {
		cfg.SysID = runSysIDFlag
	}
	if cfg.SysID == 0 {
		cfg.SysID = uint32(os.Getpid())
	}
	if runMonFlag != 0 {
		cfg.MonitoringPort = runMonFlag
	}
	if cfg.InterfaceName == "" {
		return nil, fmt.Errorf("no interface configured: set interface_name or pass -iface")
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("unrecognized log level %q: %w", cfg.LogLevel, err)
	}
	if !rootVerboseFlag {
		log.SetLevel(level)
	}
	return &cfg, nil
}

// vehicle is everything one vehicle process owns: both NICs, the
// protocol demultiplexer, the sync engine and the monitoring registry.
type vehicle struct {
	cfg   *config.Config
	raw   *nic.NIC
	shrd  *nic.NIC
	proto *v2xproto.Protocol
	sync  *ptpsync.Engine
	kk    *mac.KeyKeeper
	topo  *nav.Topology
	reg   *stats.Registry
}

// lateSender breaks the construction cycle between the sync engine
// (which sends through the protocol) and the protocol (which hands PTP
// frames to the sync engine): the protocol is plugged in after both
// exist.
type lateSender struct {
	proto *v2xproto.Protocol
}

func (s *lateSender) Send(dest wire.Address, ctrl wire.Control, payload []byte) error {
	if s.proto == nil {
		return fmt.Errorf("sender not wired yet")
	}
	return s.proto.Send(dest, ctrl, payload)
}

func newVehicle(cfg *config.Config) (*vehicle, error) {
	rawEng, err := link.NewRawEngine(cfg.InterfaceName)
	if err != nil {
		return nil, err
	}
	shrdEng, err := link.NewSharedEngine(cfg.InterfaceName, cfg.BufferPoolSize)
	if err != nil {
		return nil, err
	}

	rawNIC := nic.New(rawEng, buffer.NewPool(cfg.BufferPoolSize), true)
	shrdNIC := nic.New(shrdEng, buffer.NewPool(cfg.BufferPoolSize), false)

	topo := nav.NewTopology(cfg.Topology.Cols, cfg.Topology.Rows, cfg.Topology.RSURange)
	source, err := locationSource(cfg, topo)
	if err != nil {
		return nil, err
	}
	navigator := nav.New(source, topo)

	kk := mac.NewKeyKeeper()
	keys := mac.NewQuadrantKeeper(kk, topo)
	macE := mac.NewPoly1305Engine()

	sender := &lateSender{}
	syncE := ptpsync.New(wire.SystemID(cfg.SysID), sender, cfg.AnnouncePeriod, cfg.LeaderPeriod)
	proto := v2xproto.New(wire.SystemID(cfg.SysID), rawNIC, shrdNIC, navigator, syncE, macE, keys, kk)
	sender.proto = proto

	reg := stats.NewRegistry()
	reg.Add("pool_raw", poolCollector(rawNIC.Pool()))
	reg.Add("pool_shared", poolCollector(shrdNIC.Pool()))
	reg.Add("nic_raw", nicCollector(rawNIC))
	reg.Add("nic_shared", nicCollector(shrdNIC))
	reg.Add("protocol", func() map[string]int64 {
		c := proto.Counters()
		return map[string]int64{
			"drop_bad_dest_system": int64(c.BadDestSystem),
			"drop_bad_dest_port":   int64(c.BadDestPort),
			"drop_mac_verify":      int64(c.MacVerifyFailed),
			"drop_copy_exhausted":  int64(c.CopyExhausted),
		}
	})

	return &vehicle{
		cfg:   cfg,
		raw:   rawNIC,
		shrd:  shrdNIC,
		proto: proto,
		sync:  syncE,
		kk:    kk,
		topo:  topo,
		reg:   reg,
	}, nil
}

func locationSource(cfg *config.Config, topo *nav.Topology) (nav.LocationSource, error) {
	bound := float64(cfg.Topology.Cols) * cfg.Topology.RSURange
	switch cfg.Navigator.Kind {
	case "", "random_walk":
		return nav.NewRandomWalk(bound/2, bound/2, bound, cfg.Navigator.Speed, rand.Int63()), nil
	case "csv":
		f, err := os.Open(cfg.Navigator.Path)
		if err != nil {
			return nil, fmt.Errorf("opening navigator dataset: %w", err)
		}
		defer f.Close()
		return nav.NewCSVSource(f)
	default:
		return nil, fmt.Errorf("unrecognized navigator kind %q", cfg.Navigator.Kind)
	}
}

func poolCollector(p *buffer.Pool) func() map[string]int64 {
	return func() map[string]int64 {
		s := p.Stats()
		return map[string]int64{
			"allocs":      int64(s.Allocs),
			"frees":       int64(s.Frees),
			"in_use":      int64(s.InUse),
			"exhausted":   int64(s.Exhausted),
			"double_free": int64(s.DoubleFree),
			"foreign":     int64(s.Foreign),
		}
	}
}

func nicCollector(n *nic.NIC) func() map[string]int64 {
	return func() map[string]int64 {
		c := n.Counters()
		return map[string]int64{
			"sent":       int64(c.Sent),
			"send_drops": int64(c.SendDrops),
			"received":   int64(c.Received),
			"dropped":    int64(c.Dropped),
			"echoed":     int64(c.Echoed),
		}
	}
}

// counterTransducer is the stand-in payload source for configured
// publishers: a reading that increments on every publish, so a
// subscriber can watch for gaps.
type counterTransducer struct {
	n uint8
}

func (t *counterTransducer) Read() []byte {
	t.n++
	return []byte{t.n}
}

func runVehicle() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return runVehicleWith(cfg)
}

func runVehicleWith(cfg *config.Config) error {
	v, err := newVehicle(cfg)
	if err != nil {
		return err
	}

	if err := v.raw.Start(); err != nil {
		return err
	}
	defer func() { _ = v.raw.Stop() }()
	if err := v.shrd.Start(); err != nil {
		return err
	}
	defer func() { _ = v.shrd.Stop() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return v.sync.Run(ctx) })

	for _, pc := range cfg.Publishers {
		pubComm := comm.New(v.proto, wire.Port(pc.Port))
		addr := wire.NewAddress(v.raw.Address(), wire.SystemID(cfg.SysID), wire.Port(pc.Port))
		pub := smartdata.NewPublisher(pubComm, addr, &counterTransducer{}, pc.Unit)
		g.Go(func() error {
			defer pubComm.Close()
			return pub.Run(ctx)
		})
		log.Infof("publisher on port %d serving unit %d", pc.Port, pc.Unit)
	}

	for _, sc := range cfg.Subscribers {
		subComm := comm.New(v.proto, wire.Port(sc.Port))
		addr := wire.NewAddress(v.raw.Address(), wire.SystemID(cfg.SysID), wire.Port(sc.Port))
		sub := smartdata.NewSubscriber(subComm, addr)
		g.Go(func() error {
			defer subComm.Close()
			if err := sub.Subscribe(sc.Unit, sc.Period); err != nil {
				return err
			}
			for {
				msg, err := sub.Receive(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				log.Debugf("subscriber port %d: %d bytes from %s", sc.Port, len(msg.Payload), msg.Source)
			}
		})
		log.Infof("subscriber on port %d for unit %d every %d ticks", sc.Port, sc.Unit, sc.Period)
	}

	g.Go(func() error { return serveMonitoring(ctx, v.reg, cfg.MonitoringPort) })

	if cfg.IsRSU {
		g.Go(func() error { return runLocalRSUs(ctx, v, cfg) })
	}

	log.Infof("vehicle %d up on %s", cfg.SysID, cfg.InterfaceName)
	return g.Wait()
}

func serveMonitoring(ctx context.Context, reg *stats.Registry, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/", stats.NewJSONExporter(reg).Handler())
	mux.Handle("/metrics", stats.NewPrometheusExporter(reg).Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	log.Infof("monitoring server on :%d", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// runLocalRSUs stands up the whole RSU grid as one in-process group,
// each cell with its own rotation goroutine sharing this process's
// protocol for the key broadcasts.
func runLocalRSUs(ctx context.Context, v *vehicle, cfg *config.Config) error {
	var ids []int32
	for row := 0; row < cfg.Topology.Rows; row++ {
		for col := 0; col < cfg.Topology.Cols; col++ {
			ids = append(ids, v.topo.RSUID(col, row))
		}
	}
	group := rsu.NewGroup(ids, cfg.MacRenewInterval)
	macE := mac.NewPoly1305Engine()

	g, ctx := errgroup.WithContext(ctx)
	for row := 0; row < cfg.Topology.Rows; row++ {
		for col := 0; col < cfg.Topology.Cols; col++ {
			eng := rsu.New(col, row, v.topo, group, macE, v.proto, cfg.KeyPeriod)
			g.Go(func() error {
				if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			})
		}
	}
	return g.Wait()
}
