package utils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HSPiira/timeline-sub000/internal/utils"
)

// TestValidateEventType 事件类型格式校验
func TestValidateEventType(t *testing.T) {
	assert.NoError(t, utils.ValidateEventType("patient.admitted"))
	assert.NoError(t, utils.ValidateEventType("order_v2.shipped"))
	assert.NoError(t, utils.ValidateEventType("note"))

	assert.ErrorIs(t, utils.ValidateEventType(""), utils.ErrEmptyEventType)
	assert.ErrorIs(t, utils.ValidateEventType("Patient.Admitted"), utils.ErrInvalidEventType)
	assert.ErrorIs(t, utils.ValidateEventType("patient..admitted"), utils.ErrInvalidEventType)
	assert.ErrorIs(t, utils.ValidateEventType(".admitted"), utils.ErrInvalidEventType)
	assert.ErrorIs(t, utils.ValidateEventType("1patient"), utils.ErrInvalidEventType)
}

// TestValidateIdentifier ID 格式校验
func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, utils.ValidateIdentifier("subj-001"))
	assert.NoError(t, utils.ValidateIdentifier("a1b2_C3"))

	assert.ErrorIs(t, utils.ValidateIdentifier(""), utils.ErrEmptyID)
	assert.ErrorIs(t, utils.ValidateIdentifier("has space"), utils.ErrInvalidIDFormat)
	assert.ErrorIs(t, utils.ValidateIdentifier("semi;colon"), utils.ErrInvalidIDFormat)

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, utils.ValidateIdentifier(string(long)), utils.ErrIDTooLong)
}

// TestValidateName 名称校验
func TestValidateName(t *testing.T) {
	assert.NoError(t, utils.ValidateName("Ada Lovelace"))
	assert.ErrorIs(t, utils.ValidateName("   "), utils.ErrEmptyName)
}

// TestSanitizeString 控制字符被移除,换行和制表符保留
func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "ab\ncd\te", utils.SanitizeString("ab\ncd\te\x00\x07"))
}

// TestTrimAndValidate 清理并验证
func TestTrimAndValidate(t *testing.T) {
	out, err := utils.TrimAndValidate("  hello  ", 10)
	assert.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = utils.TrimAndValidate("  ", 10)
	assert.ErrorIs(t, err, utils.ErrEmptyString)

	_, err = utils.TrimAndValidate("toolongvalue", 5)
	assert.ErrorIs(t, err, utils.ErrStringTooLong)
}
