package live

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/imufusion/internal/timeutil"
)

// HealthConfig configures the gRPC health service.
type HealthConfig struct {
	ListenAddr string
	// Service is the name reported alongside the overall ("") status.
	Service string
	// StaleAfter is how long without a record before the service stops
	// serving.
	StaleAfter time.Duration
	CheckEvery time.Duration
}

// DefaultHealthConfig returns a config listening on :50051.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		ListenAddr: ":50051",
		Service:    "imufusion.Live",
		StaleAfter: 2 * time.Second,
		CheckEvery: 500 * time.Millisecond,
	}
}

// HealthPublisher serves grpc.health.v1 and reports SERVING while the
// estimator receives records.
type HealthPublisher struct {
	config HealthConfig
	est    *Estimator
	clock  timeutil.Clock

	health   *health.Server
	server   *grpc.Server
	listener net.Listener

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewHealthPublisher creates a publisher for est. Start must be called to
// begin serving.
func NewHealthPublisher(cfg HealthConfig, est *Estimator, clock timeutil.Clock) *HealthPublisher {
	def := DefaultHealthConfig()
	if cfg.Service == "" {
		cfg.Service = def.Service
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = def.CheckEvery
	}
	p := &HealthPublisher{
		config: cfg,
		est:    est,
		clock:  clock,
		health: health.NewServer(),
		stopCh: make(chan struct{}),
	}
	p.update()
	return p
}

// update computes the current serving status and publishes it.
func (p *HealthPublisher) update() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	o := p.est.Snapshot()
	if o.Samples > 0 && p.clock.Since(o.UpdatedAt) <= p.config.StaleAfter {
		status = healthpb.HealthCheckResponse_SERVING
	}
	p.health.SetServingStatus("", status)
	p.health.SetServingStatus(p.config.Service, status)
	return status
}

// Start binds the listener and serves in the background.
func (p *HealthPublisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("health publisher already running")
	}

	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	p.listener = lis

	p.server = grpc.NewServer()
	healthpb.RegisterHealthServer(p.server, p.health)
	p.running.Store(true)

	p.wg.Add(1)
	go p.watchLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Printf("gRPC health service listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			log.Printf("gRPC server error: %v", err)
		}
	}()
	return nil
}

func (p *HealthPublisher) watchLoop() {
	defer p.wg.Done()
	ticker := p.clock.NewTicker(p.config.CheckEvery)
	defer ticker.Stop()

	last := p.update()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C():
			if status := p.update(); status != last {
				log.Printf("health status %s -> %s", last, status)
				last = status
			}
		}
	}
}

// Addr returns the bound address, or nil before Start.
func (p *HealthPublisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop marks every service NOT_SERVING and stops the server.
func (p *HealthPublisher) Stop() {
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	close(p.stopCh)

	p.health.Shutdown()
	if p.server != nil {
		p.server.GracefulStop()
	}
	p.wg.Wait()
	log.Printf("gRPC health service stopped")
}
