// eidos-retention 在线数据分层保留服务
//
// 用法:
//
//	# 启动服务 (定时清理 + HTTP 管理接口)
//	eidos-retention serve --config config/config.yaml
//
//	# 手动清理一次
//	eidos-retention run --type raw_candles --dry-run
//
//	# 查看分层统计
//	eidos-retention stats
//
//	# 归档管理
//	eidos-retention archives list --type signals
//	eidos-retention archives restore signals_20260601_020000_1234
package main

func main() {
	Execute()
}
