package sigcache

import (
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// racyWindow 内被改过的文件不写记忆
// ctime 的精度是内核时钟节拍，同一节拍内的改写无法区分
const racyWindow = 2 * time.Second

// identity 文件的 inode 级身份
type identity struct {
	Device     uint64 `cbor:"1,keyasint"`
	Inode      uint64 `cbor:"2,keyasint"`
	ChangeTime int64  `cbor:"3,keyasint"` // ctime UnixNano
}

// entry 是存进 Redis 的记忆值
// size、mtime、设备、inode、ctime 全部与当前文件一致时才视为有效
type entry struct {
	Size      int64    `cbor:"1,keyasint"`
	ModTime   int64    `cbor:"2,keyasint"` // UnixNano
	Signature string   `cbor:"3,keyasint"`
	ID        identity `cbor:"4,keyasint"`
}

// 规范编码：相同内容总是得到相同字节
var encOptions = cbor.EncOptions{
	Sort:        cbor.SortCanonical,
	IndefLength: cbor.IndefLengthForbidden,
}

var em, _ = encOptions.EncMode()

// 解码侧限制容器大小，Redis 里的值不完全可信
var decOptions = cbor.DecOptions{
	MaxArrayElements: 16,
	MaxMapPairs:      16,
	MaxNestedLevels:  4,
	IndefLength:      cbor.IndefLengthForbidden,
	DupMapKey:        cbor.DupMapKeyEnforcedAPF,
}

var dm, _ = decOptions.DecMode()

// newEntry 构造记忆值；拿不到身份或文件刚被改过时返回 false，不应回填
func newEntry(info os.FileInfo, sig string, now time.Time) (entry, bool) {
	id, ok := fileIdentity(info)
	if !ok {
		return entry{}, false
	}
	if now.UnixNano()-id.ChangeTime < int64(racyWindow) {
		return entry{}, false
	}
	return entry{
		Size:      info.Size(),
		ModTime:   info.ModTime().UnixNano(),
		Signature: sig,
		ID:        id,
	}, true
}

func (e entry) matches(info os.FileInfo) bool {
	id, ok := fileIdentity(info)
	return ok &&
		e.Signature != "" &&
		e.Size == info.Size() &&
		e.ModTime == info.ModTime().UnixNano() &&
		e.ID == id
}

func encodeEntry(e entry) ([]byte, error) {
	return em.Marshal(e)
}

func decodeEntry(data []byte) (entry, error) {
	var e entry
	err := dm.Unmarshal(data, &e)
	return e, err
}
