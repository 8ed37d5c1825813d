package logger

import (
	"sync"

	"go.uber.org/zap"
)

var once sync.Once

// InitLogger 初始化全局 zap 日志器，业务代码统一通过 zap.L() 使用
func InitLogger() {
	once.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		zap.ReplaceGlobals(l)
	})
}

// InitDevelopment 开发模式日志（彩色、人类可读），用于本地调试
func InitDevelopment() {
	once.Do(func() {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		zap.ReplaceGlobals(l)
	})
}
