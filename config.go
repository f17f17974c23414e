package hcf

import "time"

// Acknowledgment modes for consumers.
const (
	AckManual = "manual"
	AckOnPull = "on-pull"
)

// Config holds the settings shared by producers, consumers and state
// caches of one frontier. Field tags name the environment variables the
// envconfig package loads them from.
type Config struct {
	Project  string `env:"HCF_PROJECT_ID"`
	Frontier string `env:"HCF_FRONTIER"`
	Auth     string `env:"HCF_AUTH"`
	Store    string `env:"HCF_STORE,default=https://storage.scrapinghub.com"`

	// ProducerBatchSize is the number of requests that triggers a slot flush.
	ProducerBatchSize int `env:"HCF_PRODUCER_BATCH_SIZE,default=10000"`
	// ProducerFlushInterval is the maximum age in seconds of buffered requests.
	ProducerFlushInterval int    `env:"HCF_PRODUCER_FLUSH_INTERVAL,default=30"`
	NumberOfSlots         int    `env:"HCF_PRODUCER_NUMBER_OF_SLOTS,default=8"`
	SlotPrefix            string `env:"HCF_PRODUCER_SLOT_PREFIX"`
	CleanupOnStart        bool   `env:"HCF_CLEANUP_ON_START,default=false"`

	// ConsumerMaxBatches caps the batches returned by one pull. Zero means unbounded.
	ConsumerMaxBatches int    `env:"HCF_CONSUMER_MAX_BATCHES,default=0"`
	ConsumerSlot       int    `env:"HCF_CONSUMER_SLOT,default=0"`
	ConsumerAckMode    string `env:"HCF_CONSUMER_ACK_MODE,default=manual"`

	// StatesCacheSize bounds the state cache. Zero means unbounded.
	StatesCacheSize     int `env:"HCF_STATES_CACHE_SIZE,default=0"`
	StatesFlushInterval int `env:"HCF_STATES_FLUSH_INTERVAL,default=30"`

	RetryAttempts   int           `env:"HCF_RETRY_ATTEMPTS,default=5"`
	RequestTimeout  time.Duration `env:"HCF_REQUEST_TIMEOUT,default=2m"`
	ShutdownTimeout time.Duration `env:"HCF_SHUTDOWN_TIMEOUT,default=30s"`
	// RateLimit caps remote calls per second. Zero disables throttling.
	RateLimit float64 `env:"HCF_RATE_LIMIT,default=0"`
}

// DefaultConfig returns the documented defaults with no frontier identity.
func DefaultConfig() Config {
	return Config{
		Store:                 "https://storage.scrapinghub.com",
		ProducerBatchSize:     10000,
		ProducerFlushInterval: 30,
		NumberOfSlots:         8,
		ConsumerAckMode:       AckManual,
		StatesFlushInterval:   30,
		RetryAttempts:         5,
		RequestTimeout:        2 * time.Minute,
		ShutdownTimeout:       30 * time.Second,
	}
}

// Validate returns an ECONFIG error if the configuration is unusable.
func (c *Config) Validate() error {
	if err := c.FrontierID().Validate(); err != nil {
		return err
	}
	if c.NumberOfSlots <= 0 {
		return Errorf(ECONFIG, "number of slots must be positive, got %d", c.NumberOfSlots)
	}
	if c.ConsumerSlot < 0 || c.ConsumerSlot >= c.NumberOfSlots {
		return Errorf(ECONFIG, "consumer slot %d out of range [0, %d)", c.ConsumerSlot, c.NumberOfSlots)
	}
	if c.ProducerBatchSize < 0 {
		return Errorf(ECONFIG, "producer batch size must not be negative")
	}
	if c.ProducerFlushInterval < 0 || c.StatesFlushInterval < 0 {
		return Errorf(ECONFIG, "flush intervals must not be negative")
	}
	if c.ConsumerMaxBatches < 0 {
		return Errorf(ECONFIG, "consumer max batches must not be negative")
	}
	if c.StatesCacheSize < 0 {
		return Errorf(ECONFIG, "states cache size must not be negative")
	}
	switch c.ConsumerAckMode {
	case AckManual, AckOnPull:
	default:
		return Errorf(ECONFIG, "unknown consumer ack mode %q", c.ConsumerAckMode)
	}
	if c.RetryAttempts < 1 {
		return Errorf(ECONFIG, "retry attempts must be at least 1")
	}
	return nil
}

// FrontierID returns the frontier identity configured by Project and Frontier.
func (c *Config) FrontierID() Frontier {
	return Frontier{Project: c.Project, Name: c.Frontier}
}

// ProducerFlushEvery returns ProducerFlushInterval as a duration.
func (c *Config) ProducerFlushEvery() time.Duration {
	return time.Duration(c.ProducerFlushInterval) * time.Second
}

// StatesFlushEvery returns StatesFlushInterval as a duration.
func (c *Config) StatesFlushEvery() time.Duration {
	return time.Duration(c.StatesFlushInterval) * time.Second
}
