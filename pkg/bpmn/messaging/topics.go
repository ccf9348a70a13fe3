package messaging

import "fmt"

// Topic names on the coordination bus. Every topic is derived from the ids of
// the waiting party so a publish reaches exactly the handlers waiting for it.

func ProcessInstanceTerminatedTopic(processInstanceId string) string {
	return fmt.Sprintf("process_instance/%s/terminated", processInstanceId)
}

func ProcessInstanceErrorTopic(processInstanceId string) string {
	return fmt.Sprintf("process_instance/%s/error", processInstanceId)
}

func ProcessInstanceFinishedTopic(processInstanceId string) string {
	return fmt.Sprintf("process_instance/%s/finished", processInstanceId)
}

// EndEventReachedTopic is published for every end event the instance reaches.
func EndEventReachedTopic(processInstanceId string) string {
	return fmt.Sprintf("process_instance/%s/end_event_reached", processInstanceId)
}

// EndEventReachedByIdTopic is published when the instance reaches the given end event.
func EndEventReachedByIdTopic(processInstanceId, endEventId string) string {
	return fmt.Sprintf("process_instance/%s/end_event/%s/reached", processInstanceId, endEventId)
}

func UserTaskFinishedTopic(correlationId, processInstanceId, flowNodeInstanceId string) string {
	return fmt.Sprintf("%s/%s/user_task/%s/finished", correlationId, processInstanceId, flowNodeInstanceId)
}

func ManualTaskFinishedTopic(correlationId, processInstanceId, flowNodeInstanceId string) string {
	return fmt.Sprintf("%s/%s/manual_task/%s/finished", correlationId, processInstanceId, flowNodeInstanceId)
}

func EmptyActivityFinishedTopic(correlationId, processInstanceId, flowNodeInstanceId string) string {
	return fmt.Sprintf("%s/%s/empty_activity/%s/finished", correlationId, processInstanceId, flowNodeInstanceId)
}

func MessageTopic(messageName string) string {
	return fmt.Sprintf("message/%s", messageName)
}

func MessageAckTopic(messageName string) string {
	return fmt.Sprintf("message/%s/ack", messageName)
}

func SignalTopic(signalName string) string {
	return fmt.Sprintf("signal/%s", signalName)
}

func ExternalTaskFinishedTopic(flowNodeInstanceId string) string {
	return fmt.Sprintf("external_task/%s/finished", flowNodeInstanceId)
}
