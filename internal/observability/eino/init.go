package eino

import (
	"sync/atomic"

	einocb "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
)

var registered atomic.Bool

// globalHandler 模型调用与向量化调用共用的回调
func globalHandler() einocb.Handler {
	return cbtemplate.NewHandlerHelper().
		ChatModel(newChatModelCallbackHandler()).
		Embedding(newEmbeddingCallbackHandler()).
		Handler()
}

// Init 进程启动时注册一次全局回调，重复调用无效果。返回本次是否完成注册。
func Init() bool {
	if !registered.CompareAndSwap(false, true) {
		return false
	}
	einocb.AppendGlobalHandlers(globalHandler())
	return true
}
