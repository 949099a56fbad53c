package logger

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logDir = "logs"

// 双路日志：控制台彩色输出（Debug级别），文件JSON输出（Info级别）带轮转
var (
	consoleLogger *logrus.Logger
	fileLogger    *logrus.Logger
)

func init() {
	// 控制台日志配置
	consoleLogger = logrus.New()
	consoleLogger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})
	consoleLogger.SetOutput(os.Stdout)
	consoleLogger.SetLevel(logrus.DebugLevel)

	// 文件日志配置，使用lumberjack进行日志轮转
	if err := os.MkdirAll(logDir, 0755); err != nil {
		consoleLogger.Errorf("无法创建日志目录: %v", err)
	}

	fileLogger = logrus.New()
	fileLogger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})
	fileLogger.SetLevel(logrus.InfoLevel)
	fileLogger.SetOutput(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, "ratbot.log"),
		MaxSize:    10,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	})
}

func Debugf(format string, args ...any) {
	consoleLogger.Debugf(format, args...)
	fileLogger.Debugf(format, args...)
}

func Infof(format string, args ...any) {
	consoleLogger.Infof(format, args...)
	fileLogger.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	consoleLogger.Warnf(format, args...)
	fileLogger.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	consoleLogger.Errorf(format, args...)
	fileLogger.Errorf(format, args...)
}

func Fatalf(format string, args ...any) {
	fileLogger.Errorf(format, args...)
	consoleLogger.Fatalf(format, args...)
}
