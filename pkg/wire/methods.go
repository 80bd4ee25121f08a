package wire

// Moonraker methods called by this client.
const (
	MethodObjectsList      = "printer.objects.list"
	MethodObjectsSubscribe = "printer.objects.subscribe"
	MethodObjectsQuery     = "printer.objects.query"
	MethodPrinterInfo      = "printer.info"
	MethodServerInfo       = "server.info"
	MethodIdentify         = "server.connection.identify"
)

// Moonraker notifications consumed by this client.
const (
	NotifyStatusUpdate       = "notify_status_update"
	NotifyProcStatUpdate     = "notify_proc_stat_update"
	NotifyKlippyReady        = "notify_klippy_ready"
	NotifyKlippyShutdown     = "notify_klippy_shutdown"
	NotifyKlippyDisconnected = "notify_klippy_disconnected"
)
