package logging

import "github.com/sirupsen/logrus"

// PackageFields 单个包操作的公共字段
func PackageFields(action, pkg string) logrus.Fields {
	return logrus.Fields{
		"action":  action,
		"package": pkg,
	}
}

// MirrorFields 一次镜像请求的字段
func MirrorFields(mirror, remote, local string) logrus.Fields {
	return logrus.Fields{
		"mirror": mirror,
		"remote": remote,
		"local":  local,
	}
}
