package datagen

import (
	"github.com/go-python/gpython/parser"
)

// validPythonSyntax 校验代码是否为合法的 Python 语法
//
// 使用 gpython 的解析器做完整的语法解析，只关心能否解析成功，
// 不执行代码。
func validPythonSyntax(code string) bool {
	_, err := parser.ParseString(code, "exec")
	return err == nil
}
