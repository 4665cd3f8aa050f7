package disasm

import "fmt"

// jniEnvFuncs is the JNINativeInterface function table in slot order.
var jniEnvFuncs = buildJNIEnvTable()

// javaVMFuncs is the JNIInvokeInterface function table in slot order.
var javaVMFuncs = []string{
	"reserved0", "reserved1", "reserved2",
	"DestroyJavaVM", "AttachCurrentThread", "DetachCurrentThread",
	"GetEnv", "AttachCurrentThreadAsDaemon",
}

func buildJNIEnvTable() []string {
	t := []string{
		"reserved0", "reserved1", "reserved2", "reserved3",
		"GetVersion", "DefineClass", "FindClass",
		"FromReflectedMethod", "FromReflectedField", "ToReflectedMethod",
		"GetSuperclass", "IsAssignableFrom", "ToReflectedField",
		"Throw", "ThrowNew", "ExceptionOccurred", "ExceptionDescribe",
		"ExceptionClear", "FatalError", "PushLocalFrame", "PopLocalFrame",
		"NewGlobalRef", "DeleteGlobalRef", "DeleteLocalRef", "IsSameObject",
		"NewLocalRef", "EnsureLocalCapacity", "AllocObject",
		"NewObject", "NewObjectV", "NewObjectA",
		"GetObjectClass", "IsInstanceOf", "GetMethodID",
	}
	types := []string{"Object", "Boolean", "Byte", "Char", "Short", "Int", "Long", "Float", "Double", "Void"}
	fieldTypes := types[:9]
	prims := types[1:9]

	calls := func(prefix string) {
		for _, ty := range types {
			m := prefix + ty + "Method"
			t = append(t, m, m+"V", m+"A")
		}
	}
	fields := func(format string) {
		for _, ty := range fieldTypes {
			t = append(t, fmt.Sprintf(format, ty))
		}
	}

	calls("Call")
	calls("CallNonvirtual")
	t = append(t, "GetFieldID")
	fields("Get%sField")
	fields("Set%sField")
	t = append(t, "GetStaticMethodID")
	calls("CallStatic")
	t = append(t, "GetStaticFieldID")
	fields("GetStatic%sField")
	fields("SetStatic%sField")
	t = append(t,
		"NewString", "GetStringLength", "GetStringChars", "ReleaseStringChars",
		"NewStringUTF", "GetStringUTFLength", "GetStringUTFChars", "ReleaseStringUTFChars",
		"GetArrayLength", "NewObjectArray", "GetObjectArrayElement", "SetObjectArrayElement",
	)
	for _, format := range []string{"New%sArray", "Get%sArrayElements", "Release%sArrayElements", "Get%sArrayRegion", "Set%sArrayRegion"} {
		for _, ty := range prims {
			t = append(t, fmt.Sprintf(format, ty))
		}
	}
	return append(t,
		"RegisterNatives", "UnregisterNatives", "MonitorEnter", "MonitorExit",
		"GetJavaVM", "GetStringRegion", "GetStringUTFRegion",
		"GetPrimitiveArrayCritical", "ReleasePrimitiveArrayCritical",
		"GetStringCritical", "ReleaseStringCritical",
		"NewWeakGlobalRef", "DeleteWeakGlobalRef", "ExceptionCheck",
		"NewDirectByteBuffer", "GetDirectBufferAddress", "GetDirectBufferCapacity",
		"GetObjectRefType",
	)
}

// JNIEnvFunc names the JNIEnv function stored at byteOff in the
// function table, or returns "" if byteOff is not a slot.
func JNIEnvFunc(byteOff int) string { return slot(jniEnvFuncs, byteOff) }

// JavaVMFunc names the JavaVM function stored at byteOff.
func JavaVMFunc(byteOff int) string { return slot(javaVMFuncs, byteOff) }

func slot(table []string, byteOff int) string {
	if byteOff < 0 || byteOff%8 != 0 || byteOff/8 >= len(table) {
		return ""
	}
	return table[byteOff/8]
}

// JNIEnvSlot returns the function table byte offset of the named JNIEnv
// function.
func JNIEnvSlot(name string) (int, bool) {
	for i, n := range jniEnvFuncs {
		if n == name {
			return i * 8, true
		}
	}
	return 0, false
}
