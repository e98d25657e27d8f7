package config

import "time"

// Config is the top-level YAML structure.
type Config struct {
	Version   string        `yaml:"version"`
	Pipeline  PipelineConf  `yaml:"pipeline"`
	Rules     RulesConf     `yaml:"rules"`
	Transport TransportConf `yaml:"transport"`
	Alerts    AlertsConf    `yaml:"alerts"`
	HTTP      HTTPConf      `yaml:"http"`
	Logging   LoggingConf   `yaml:"logging"`
	Producer  ProducerConf  `yaml:"producer"`
}

// PipelineConf sizes the ring buffer and worker pool. Changes need a restart.
type PipelineConf struct {
	RingSize             int           `yaml:"ring_size"`
	Workers              int           `yaml:"workers"`
	QueueCapacity        int           `yaml:"queue_capacity"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout"`
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}

// RulesConf configures the fraud rules. Blacklist and custom rules hot-reload.
type RulesConf struct {
	LargeAmountThreshold  string        `yaml:"large_amount_threshold"`
	SuspiciousAccounts    []string      `yaml:"suspicious_accounts"`
	RapidFireMaxPerMinute int           `yaml:"rapid_fire_max_per_minute"`
	RapidFireSweep        time.Duration `yaml:"rapid_fire_sweep"`
	Custom                []CustomRule  `yaml:"custom"`
}

// CustomRule is an expression evaluated against each transaction.
type CustomRule struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	Reason     string `yaml:"reason"`
}

// TransportConf selects where transactions are received from.
type TransportConf struct {
	Kind  string         `yaml:"kind"` // memory | redis
	Redis RedisQueueConf `yaml:"redis"`
}

type RedisQueueConf struct {
	Addr            string        `yaml:"addr"`
	Queue           string        `yaml:"queue"`
	ProcessingQueue string        `yaml:"processing_queue"`
	BlockTimeout    time.Duration `yaml:"block_timeout"`
}

// AlertsConf lists the alert sinks, by registry name.
type AlertsConf struct {
	Sinks []string      `yaml:"sinks"`
	Redis RedisSinkConf `yaml:"redis"`
}

type RedisSinkConf struct {
	Addr string `yaml:"addr"`
	List string `yaml:"list"`
}

type HTTPConf struct {
	Addr string `yaml:"addr"`
}

type LoggingConf struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// ProducerConf drives the synthetic transaction producer.
type ProducerConf struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	FraudRate     float64 `yaml:"fraud_rate"`
	BurstEvery    int     `yaml:"burst_every"`
}
