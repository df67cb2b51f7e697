package service

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"sort"
	"strconv"
	"unicode/utf8"

	"GachaSync/internal/catalog"
	"GachaSync/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// 导入失败原因
const (
	ImportFileNotJSON       = "file_not_json"
	ImportNoInfo            = "no_info"
	ImportMissSignature     = "miss_signature"
	ImportInvalidSignature  = "invalid_signature"
	ImportUnsupportedExport = "unsupported_export_type"
	ImportInvalidData       = "invalid_data"
)

// ImportError 导入文件校验失败，Reason 为上面的原因码
type ImportError struct {
	Reason string
	Err    error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("导入失败: %s: %v", e.Reason, e.Err)
	}
	return "导入失败: " + e.Reason
}

func (e *ImportError) Unwrap() error { return e.Err }

func importErr(reason string, err error) error {
	return &ImportError{Reason: reason, Err: err}
}

// ImportService 导入抽卡助手导出的带签名的寻访/充值文件
type ImportService struct {
	ingester *Ingester
	key      *rsa.PublicKey
	logger   *logrus.Logger
}

func NewImportService(ingester *Ingester, key *rsa.PublicKey, logger *logrus.Logger) *ImportService {
	return &ImportService{ingester: ingester, key: key, logger: logger}
}

// LoadPublicKey 读取 PEM 格式的 RSA 公钥，兼容 PKIX 与 PKCS#1
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取公钥文件失败: %w", err)
	}
	return ParsePublicKey(data)
}

func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("公钥不是PEM格式")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("解析公钥失败: %w", err)
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("公钥不是RSA公钥")
	}
	return key, nil
}

// Import 校验签名后同步入库；校验失败返回 *ImportError，此时不写入任何数据
func (s *ImportService) Import(ctx context.Context, bundle []byte, account *model.Account) (IngestResult, error) {
	if !gjson.ValidBytes(bundle) {
		return IngestResult{}, importErr(ImportFileNotJSON, nil)
	}
	doc := gjson.ParseBytes(bundle)
	info := doc.Get("info")
	if !doc.IsObject() || !info.IsObject() {
		return IngestResult{}, importErr(ImportNoInfo, nil)
	}
	verify := info.Get("verify")
	if verify.Type != gjson.String || verify.Str == "" {
		return IngestResult{}, importErr(ImportMissSignature, nil)
	}
	if err := s.verify(doc, verify.Str); err != nil {
		return IngestResult{}, importErr(ImportInvalidSignature, err)
	}

	exportType := info.Get("exportType")
	if !exportType.Exists() {
		exportType = info.Get("export_type")
	}
	log := s.logger.WithFields(logrus.Fields{"uid": account.UID, "export_type": exportType.String()})

	var (
		res IngestResult
		err error
	)
	switch exportType.String() {
	case "gacha":
		var items []model.RawGacha
		if items, err = parseGachaExport(doc.Get("data")); err != nil {
			return IngestResult{}, importErr(ImportInvalidData, err)
		}
		res, err = s.ingester.IngestPulls(ctx, account, items)
	case "pay":
		var items []model.RawPay
		if items, err = parsePayExport(doc.Get("data")); err != nil {
			return IngestResult{}, importErr(ImportInvalidData, err)
		}
		res, err = s.ingester.IngestPayments(ctx, account, items)
	default:
		return IngestResult{}, importErr(ImportUnsupportedExport, nil)
	}
	if err != nil {
		return IngestResult{}, err
	}
	log.WithFields(res.fields()).Info("导入文件入库完成")
	return res, nil
}

func (s *ImportService) verify(doc gjson.Result, signature string) error {
	if s.key == nil {
		return fmt.Errorf("未配置导入公钥")
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("签名不是合法的base64: %w", err)
	}
	digest := sha256.Sum256(CanonicalJSON(doc))
	return rsa.VerifyPKCS1v15(s.key, crypto.SHA256, digest[:], sig)
}

// CanonicalJSON 按文档原有键序输出紧凑JSON，去掉 info.verify；非ASCII字符原样输出，数字保留原文
func CanonicalJSON(doc gjson.Result) []byte {
	var buf bytes.Buffer
	writeCanonical(&buf, doc, 0, false)
	return buf.Bytes()
}

// writeCanonical depth 为对象嵌套层数，inInfo 表示当前位于顶层 info 对象中
func writeCanonical(buf *bytes.Buffer, v gjson.Result, depth int, inInfo bool) {
	switch {
	case v.IsObject():
		buf.WriteByte('{')
		first := true
		v.ForEach(func(key, value gjson.Result) bool {
			if inInfo && key.Str == "verify" {
				return true
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeString(buf, key.Str)
			buf.WriteByte(':')
			writeCanonical(buf, value, depth+1, depth == 0 && key.Str == "info")
			return true
		})
		buf.WriteByte('}')
	case v.IsArray():
		buf.WriteByte('[')
		for i, item := range v.Array() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, item, depth+1, false)
		}
		buf.WriteByte(']')
	case v.Type == gjson.String:
		writeString(buf, v.Str)
	default:
		buf.WriteString(v.Raw)
	}
}

// writeString 只转义引号、反斜杠与控制字符
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r < 0x20:
			fmt.Fprintf(buf, `\u%04x`, r)
		default:
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}

// parseGachaExport {ts: {p: 卡池名, c: [[干员, 星级(0起), 是否新获得]]}}，按时间正序返回
func parseGachaExport(data gjson.Result) ([]model.RawGacha, error) {
	if !data.IsObject() {
		return nil, fmt.Errorf("data 不是对象")
	}
	var (
		out []model.RawGacha
		err error
	)
	data.ForEach(func(key, value gjson.Result) bool {
		ts, perr := strconv.ParseInt(key.Str, 10, 64)
		if perr != nil {
			err = fmt.Errorf("非法时间戳 %q", key.Str)
			return false
		}
		item := model.RawGacha{Ts: ts, Pool: catalog.FixRealName(value.Get("p").String())}
		for _, c := range value.Get("c").Array() {
			fields := c.Array()
			if len(fields) < 2 {
				err = fmt.Errorf("时间 %d 的干员数据不完整", ts)
				return false
			}
			ch := model.RawChar{Name: fields[0].String(), Rarity: int(fields[1].Int())}
			if len(fields) > 2 {
				ch.IsNew = fields[2].Bool()
			}
			item.Chars = append(item.Chars, ch)
		}
		out = append(out, item)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts < out[j].Ts })
	return out, nil
}

// parsePayExport {ts: {orderId, productName, amount, platform}}
func parsePayExport(data gjson.Result) ([]model.RawPay, error) {
	if !data.IsObject() {
		return nil, fmt.Errorf("data 不是对象")
	}
	var (
		out []model.RawPay
		err error
	)
	data.ForEach(func(key, value gjson.Result) bool {
		ts, perr := strconv.ParseInt(key.Str, 10, 64)
		if perr != nil {
			err = fmt.Errorf("非法时间戳 %q", key.Str)
			return false
		}
		item := model.RawPay{
			OrderID:     value.Get("orderId").String(),
			ProductName: value.Get("productName").String(),
			Amount:      value.Get("amount").Int(),
			PayTime:     model.Timestamp(ts),
		}
		if p := value.Get("platform"); p.Exists() {
			if perr := item.Platform.UnmarshalJSON([]byte(p.Raw)); perr != nil {
				err = perr
				return false
			}
		}
		out = append(out, item)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PayTime < out[j].PayTime })
	return out, nil
}
