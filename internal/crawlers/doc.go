// Package crawlers 提供基于浏览器会话的YouTube抓取agent和两种worker池
//
// # 概述
//
// 每个Agent独占一个浏览器会话(Driver),由go-rod驱动并通过stealth隐藏自动化特征。
// 开放搜索模式下,Orchestrator为每个搜索种子运行一个长期循环的agent;
// 频道模式下,ChannelPool预先创建固定数量的agent,逐个分配频道任务。
//
// # 核心组件
//
// ## Agent
//
// 开放搜索循环: 打开搜索结果页 -> 随机滚动并从尾部窗口选择候选 -> 提取视频字段 -> 从推荐栏继续选择。
// 同一个视频(按v参数)在agent生命周期内最多记录一次。
//
//	agent, err := NewAgent(driver, NewAgentConfig(cfg, DefaultLocators()))
//	_ = agent.Assign(models.SearchSeed{Term: "cats"})
//	err = agent.RunLoop(func() bool { return stopped.Load() })
//
// 频道抓取: 打开频道视频列表页,读取标题、上传日期和播放量三列,长度不一致时丢弃。
//
//	record, err := agent.ScrapeChannel("Cats", "https://www.youtube.com/@cats")
//
// ## RunWithRetry
//
// 固定间隔重试,前MaxAttempts-1次失败被吞掉,最后一次的结果原样返回。
// 取消、加载超时、会话断开和Fatal标记的错误不重试。
//
// ## Orchestrator (开放搜索worker池)
//
// 监控循环每隔FlushInterval汇总agent缓冲区,用新agent替换已退出的worker。
// Stop在所有agent结束当前一轮后返回,返回前汇总全部缓冲区并关闭会话。
//
//	o, _ := NewOrchestrator(OrchestratorConfig{Factory: factory})
//	_ = o.StartLoops(tasks)
//	...
//	o.Stop()
//	records := o.Collect()
//
// ## ChannelPool (频道模式agent池)
//
// 同时进行的任务数不超过Size。会话断开的agent不再复用;
// 仍有任务但已没有可用agent时Run返回ErrCapacityExhausted。
//
// # 并发安全
//
//   - RecordBuffer/VisitedSet/TaskQueue: sync.Mutex
//   - Orchestrator/ChannelPool: 持有锁时不执行页面操作,状态计数使用atomic
//   - Agent: 同一时刻只由一个worker goroutine驱动
package crawlers
