package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ DistributedLocker = (*MemoryLocker)(nil)
	_ MetricsRecorder   = NopMetricsRecorder{}
	_ ConfigProvider    = (*CfgxConfigProvider)(nil)
	_ OptionsResolver   = GoOptionsResolver{}
	_ RawConfigLoader   = StaticRawConfigLoader{}
	_ Action            = ActionFunc(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
