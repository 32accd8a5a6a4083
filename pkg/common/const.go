package common

const (
	KEY_DAILY_BARS    = "daily_bars:%s:%s:%s"
	KEY_SECTOR_CODES  = "sector_codes:%s"
	KEY_STRATEGY_LIST = "strategy_list"
)

const (
	EXCHANGE_SH = "SH"
	EXCHANGE_SZ = "SZ"
)

const (
	ADJUST_NONE     = "none"
	ADJUST_FORWARD  = "qfq"
	ADJUST_BACKWARD = "hfq"
)

const (
	KEY_LOG_HOOK_SEND_ALERT = "send_alert"
)
